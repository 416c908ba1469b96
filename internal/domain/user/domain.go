package user

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Projection is the externally visible view of a user. It never carries the password hash.
type Projection struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

func (u *User) Projection() Projection {
	return Projection{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// Detail is role-specific profile data attached to a user, e.g. a customer's questionnaire.
type Detail struct {
	UserID     int64
	Attributes map[string]any
}

type EventType string

const (
	EventRegistered EventType = "user.registered"
	EventUpdated    EventType = "user.updated"
)

type Event struct {
	Type     EventType `json:"type"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	At       time.Time `json:"at"`
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
