package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. Identity is owned by the auth
// subsystem; the ledger only ever references users by ID.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// DisplayName is shown to other users in balance details.
	DisplayName string `json:"display_name"`

	// Email is the user's email address (unique, used for login).
	Email string `json:"email"`

	// HomeCurrency is the ISO 4217 code amounts are displayed in.
	// Conversion between currencies is out of scope for the ledger.
	HomeCurrency string `json:"home_currency"`

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"-"`

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last profile change.
	UpdatedAt int64 `json:"updated_at"`
}

// NewUser creates a user with a generated ID and timestamps.
func NewUser(email, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		DisplayName:  displayName,
		Email:        email,
		HomeCurrency: "USD",
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
