package identity

import (
	"fmt"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleEmployee Role = "Employee"
	RoleTrainer  Role = "Trainer"
	RoleHOD      Role = "HOD"
	RoleHR       Role = "HR"
)

// ParseRole converts user input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid returns true when the role is a supported value.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleTrainer, RoleHOD, RoleHR:
		return true
	default:
		return false
	}
}

// RequiresDepartment reports whether accounts of this role must belong to a department.
func (r Role) RequiresDepartment() bool {
	return r != RoleHR
}

// User is an account together with its profile.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsApproved   bool      `json:"is_approved"`
	DepartmentID *string   `json:"department_id,omitempty"`
	ExtraInfo    string    `json:"extra_info,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Department returns the department id or "" for users without one.
func (u User) Department() string {
	if u.DepartmentID == nil {
		return ""
	}
	return *u.DepartmentID
}

// Actor returns the authorization view of the user.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, DepartmentID: u.Department()}
}

// Actor identifies who performs an operation.
type Actor struct {
	ID           string
	Role         Role
	DepartmentID string
}

// Is reports whether the actor holds any of the roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Department groups staff under an optional head of department.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HODID     *string   `json:"hod_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an issued pair of tokens.
type Session struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             User      `json:"user"`
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Role         Role
	DepartmentID string
	Approved     *bool
}
