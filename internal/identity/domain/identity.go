package domain

import "time"

// Role is an admin account's role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Status is an admin account's lifecycle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Admin is an operator account that can sign in and run passkey ceremonies.
type Admin struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Caller is the authenticated principal carried by an access token.
type Caller struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// Caller returns the principal for a.
func (a *Admin) Caller() Caller {
	return Caller{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}
