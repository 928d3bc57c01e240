package model

import (
	"fmt"
	"time"
)

// User is an operator. Each user is an isolated tenant: counts and history
// are scoped by the user id.
type User struct {
	ID        int64      `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	CodeHash  string     `db:"code_hash" json:"-"`
	Role      string     `db:"role" json:"role"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// MinCodeLength is the minimum length of an unlock code.
const MinCodeLength = 4

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin: 2,
		RoleUser:  1,
	}
	return levels[role] > 0 && levels[role] >= levels[minimum]
}

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// ValidateCode checks that an unlock code is acceptable.
func ValidateCode(code string) error {
	if len(code) < MinCodeLength {
		return Invalid(fmt.Sprintf("unlock code must be at least %d characters", MinCodeLength))
	}
	return nil
}
