// Package auth issues and verifies the bearer tokens that identify report
// submitters.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager signs and verifies user scoped JWT tokens.
type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

// NewTokenManager builds a token helper using the provided secret.
func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{
		secretKey: []byte(secretKey),
		ttl:       24 * time.Hour,
	}
}

// WithTTL allows customising the expiration duration.
func (tm *TokenManager) WithTTL(ttl time.Duration) *TokenManager {
	if ttl > 0 {
		tm.ttl = ttl
	}
	return tm
}

// GenerateToken issues a JWT for the provided user identifier.
func (tm *TokenManager) GenerateToken(userID uint, email string) (string, error) {
	if tm == nil {
		return "", errors.New("token manager is nil")
	}
	if len(tm.secretKey) == 0 {
		return "", errors.New("token secret is empty")
	}

	expireTime := time.Now().Add(tm.ttl)
	claims := jwt.MapClaims{
		"user_id": float64(userID),
		"email":   email,
		"exp":     expireTime.Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken validates the JWT and extracts the user identity.
func (tm *TokenManager) VerifyToken(tokenString string) (uint, string, error) {
	if tm == nil {
		return 0, "", errors.New("token manager is nil")
	}
	if len(tm.secretKey) == 0 {
		return 0, "", errors.New("token secret is empty")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secretKey, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("invalid claims")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", errors.New("invalid user_id claim")
	}
	email, _ := claims["email"].(string)
	return uint(userID), email, nil
}
