package identity

import "errors"

var (
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotApproved        = errors.New("account is not approved")
	ErrInvalidRole        = errors.New("invalid role")
	ErrValidation         = errors.New("validation failed")

	// Role/department invariant violations.
	ErrDepartmentRequired  = errors.New("department is required for this role")
	ErrDepartmentForbidden = errors.New("HR accounts cannot belong to a department")

	ErrDepartmentNotFound = errors.New("department not found")
	ErrDepartmentExists   = errors.New("department already exists")
	ErrNotHOD             = errors.New("user is not a head of this department")

	ErrRefreshInvalid = errors.New("invalid or revoked refresh token")
)
