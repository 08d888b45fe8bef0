package auth

import (
	"time"

	"github.com/meridian-gov/meridian/internal/authz"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         authz.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the account into its policy identity.
func (u User) Principal() authz.Principal {
	return authz.Principal{ID: u.ID, Role: u.Role, Active: u.IsActive}
}
