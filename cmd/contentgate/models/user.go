package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a wallet that has logged in at least once
type User struct {
	Address   string    `json:"address"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	Banner    string    `json:"banner"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfilePatch holds the self-editable fields of a user. It is the document
// a JSON merge patch is applied to.
type ProfilePatch struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Banner   string `json:"banner"`
	Bio      string `json:"bio"`
}

// ProfileRequest is the body of POST /api/v1/users/profile. An empty
// address means the caller's own profile.
type ProfileRequest struct {
	Address string `json:"address"`
}

// APIKey is a long-lived credential bound to a user. Only the SHA-256 of
// the raw key is stored.
type APIKey struct {
	ID          uuid.UUID  `json:"_id"`
	UserAddress string     `json:"-"`
	KeyHash     string     `json:"-"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

// LoginRequest is the body of POST /api/v1/users/login
type LoginRequest struct {
	Address string `json:"address"`
}

// LoginResponse carries the session token issued at login
type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// CreateAPIKeyRequest is the body of POST /api/v1/apikeys
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// CreateAPIKeyResponse returns the raw key exactly once
type CreateAPIKeyResponse struct {
	ID      uuid.UUID `json:"_id"`
	APIKey  string    `json:"apiKey"`
	Message string    `json:"message"`
}
