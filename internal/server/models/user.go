// Package models holds the records persisted by the auth stores.
package models

import "time"

// Role is the authorization level of a user.
type Role string

const (
	RoleUser        Role = "user"
	RoleContributor Role = "contributor"
	RoleVerifier    Role = "verifier"
	RoleDeveloper   Role = "developer"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleContributor, RoleVerifier, RoleDeveloper, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role may manage other accounts.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Status is the lifecycle state of an account. Accounts are never deleted;
// they move to inactive or suspended instead.
type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
	StatusPendingVerification Status = "pending_verification"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPendingVerification:
		return true
	}
	return false
}

// CanSignIn reports whether an account in this state may obtain tokens.
func (s Status) CanSignIn() bool {
	return s == StatusActive
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	Status       Status
	Country      string
	City         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credentials from u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.Status,
		Country:   u.Country,
		City:      u.City,
		CreatedAt: u.CreatedAt,
	}
}
