package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a member of the tenant directory. Users are owned by the wider
// platform; escalation only reads them to resolve recipients and assignees.
type User struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a new active User with the given details.
func NewUser(orgID uuid.UUID, email, name string, roles ...string) *User {
	return &User{
		ID:        uuid.New(),
		OrgID:     orgID,
		Email:     email,
		Name:      name,
		Roles:     roles,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
