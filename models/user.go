package models

import (
	"fmt"
	"strings"
	"time"
)

// Role discriminates the profile attached to a user.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// ParseRole accepts the role names and the legacy numeric user_type codes
// ("1" student, "2" instructor).
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "student", "1":
		return RoleStudent, nil
	case "instructor", "2":
		return RoleInstructor, nil
	default:
		return "", fmt.Errorf("unknown user type %q", raw)
	}
}

// User is an authenticated account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"user_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Instructor is the profile of a user who teaches courses.
type Instructor struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	CoursesTaught string `json:"courses_taught,omitempty"`
}
