package storage

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"coastwatch-server-go/internal/platform/errors"
)

// ErrDuplicateEmail is returned when a signup reuses an existing address.
var ErrDuplicateEmail = errors.New(errors.KindStorage, "storage.CreateUser", "Email already registered")

// UserRepository persists user accounts.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. Duplicate addresses yield ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	const op = "storage.CreateUser"

	var count int64
	if err := r.db.WithContext(ctx).Model(&User{}).
		Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "check email", err)
	}
	if count > 0 {
		return ErrDuplicateEmail
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "create user", err)
	}
	return nil
}

// FindByEmail returns the user for an address, or nil when unknown.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.FindByEmail", "query user", err)
	}
	return &user, nil
}

// FindByID returns the user for an identifier, or nil when unknown.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.FindByID", "query user", err)
	}
	return &user, nil
}
