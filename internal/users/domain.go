package users

import (
	"time"

	"github.com/meridian-gov/meridian/internal/authz"
)

// User represents an account in the case-management system.
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

// Resource projects the account as an access-controlled resource. A
// user profile is owned by the account itself.
func (u User) Resource() authz.Resource {
	return authz.Resource{Type: authz.ResourceUser, ID: u.ID, OwnerID: u.ID}
}
