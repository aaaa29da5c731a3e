package storage

import (
	"time"

	"gorm.io/datatypes"
)

// User is a registered report submitter.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FullName     string    `gorm:"not null" json:"full_name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `gorm:"default:user" json:"role"`
	Points       int       `gorm:"default:0" json:"points"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// NGO is a partner organisation reports can be forwarded to.
type NGO struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	Email          string    `gorm:"not null" json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
	Description    string    `gorm:"type:text" json:"description,omitempty"`
	Website        string    `json:"website,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (NGO) TableName() string {
	return "ngos"
}

// Report is one stored pollution report with its classification outcome.
// Votes holds the optional per-model breakdown as a JSON document.
type Report struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"index" json:"user_id"`
	ImagePath     string         `gorm:"not null" json:"image_path"`
	Latitude      float64        `gorm:"not null;index:idx_reports_location" json:"latitude"`
	Longitude     float64        `gorm:"not null;index:idx_reports_location" json:"longitude"`
	PollutionType string         `gorm:"not null" json:"pollution_type"`
	Confidence    float64        `gorm:"not null" json:"confidence"`
	Description   string         `gorm:"type:text" json:"description,omitempty"`
	Status        string         `gorm:"default:pending;index" json:"status"`
	NgoID         *uint          `json:"ngo_id,omitempty"`
	AdminNotes    string         `gorm:"type:text" json:"admin_notes,omitempty"`
	Votes         datatypes.JSON `json:"votes,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Report) TableName() string {
	return "reports"
}
