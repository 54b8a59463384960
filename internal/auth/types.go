package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of clinic roles carried on access credentials.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
	RolePatient Role = "patient"
)

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("auth: unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleStaff, RolePatient:
		return true
	}
	return false
}

// Principal is the identity authorization decisions are made against.
// Immutable for the lifetime of a session; role or clinic changes require
// re-issuance.
type Principal struct {
	UserID   string `json:"user_id"`
	ClinicID string `json:"clinic_id"`
	Role     Role   `json:"role"`
}

// User is an account in the clinic directory.
type User struct {
	ID           string
	ClinicID     string
	Email        string
	PasswordHash string
	Role         Role
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionFamily represents one continuous login. Exactly one refresh
// credential generation is valid per family at any instant; rotation
// advances Generation and swaps RefreshHash atomically.
type SessionFamily struct {
	ID          string
	UserID      string
	ClinicID    string
	Role        Role
	Generation  int64
	RefreshHash string
	Revoked     bool
	CreatedAt   time.Time
	RotatedAt   time.Time
}

// TokenPair is the canonical issuance result: a short-lived access
// credential plus the single currently-valid refresh credential.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
