package models

import (
	"time"
)

type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Name          string
	EmailVerified bool
	Role          string   // e.g., "user", "admin"
	Permissions   []string // fine-grained grants beyond the role
	Status        string   // "active", "suspended", "disabled"
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDisabled  = "disabled"
)
