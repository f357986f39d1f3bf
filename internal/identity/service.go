package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence the identity service needs.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]User, error)
	SetApproved(ctx context.Context, id string, approved bool) error
	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartment(ctx context.Context, id string) (Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	SetDepartmentHOD(ctx context.Context, departmentID, userID string) error
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, token string) (string, error)
}

// Tokens issues and verifies session tokens.
type Tokens interface {
	IssuePair(u User) (Session, error)
	ParseRefresh(token string) (string, error)
}

// RegisterInput is a self-service sign-up request.
type RegisterInput struct {
	Username     string  `json:"username" validate:"required,min=3,max=150"`
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=8,max=72"`
	FullName     string  `json:"full_name" validate:"max=200"`
	Role         Role    `json:"role" validate:"required"`
	DepartmentID *string `json:"department_id"`
	ExtraInfo    string  `json:"extra_info" validate:"max=2000"`
}

// Service implements account, login and department operations.
type Service struct {
	store    Store
	tokens   Tokens
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a service backed by a store.
func NewService(store Store, tokens Tokens, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, validate: validator.New(), logger: logger}
}

// Register creates an unapproved account. HR accounts are bootstrapped, never self-registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if in.Role == RoleHR {
		return User{}, fmt.Errorf("%w: HR accounts cannot self-register", ErrInvalidRole)
	}
	return s.create(ctx, in, false)
}

// BootstrapHR creates an approved HR account with no department.
func (s *Service) BootstrapHR(ctx context.Context, username, email, password string) (User, error) {
	return s.create(ctx, RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     RoleHR,
	}, true)
}

func (s *Service) create(ctx context.Context, in RegisterInput, approved bool) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseRole(string(in.Role)); err != nil {
		return User{}, err
	}
	if in.DepartmentID != nil && *in.DepartmentID == "" {
		in.DepartmentID = nil
	}
	if err := CheckDepartment(in.Role, in.DepartmentID); err != nil {
		return User{}, err
	}
	if in.DepartmentID != nil {
		if _, err := s.store.GetDepartment(ctx, *in.DepartmentID); err != nil {
			return User{}, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: string(hash),
		Role:         in.Role,
		IsApproved:   approved,
		DepartmentID: in.DepartmentID,
		ExtraInfo:    in.ExtraInfo,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return User{}, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// CheckDepartment enforces that HR has no department and every other role has one.
func CheckDepartment(role Role, departmentID *string) error {
	hasDept := departmentID != nil && *departmentID != ""
	switch {
	case role.RequiresDepartment() && !hasDept:
		return ErrDepartmentRequired
	case !role.RequiresDepartment() && hasDept:
		return ErrDepartmentForbidden
	}
	return nil
}

// Authenticate verifies a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Login authenticates an approved account and issues a session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	if !u.IsApproved {
		return Session{}, ErrNotApproved
	}
	return s.issue(ctx, u)
}

// Refresh rotates a refresh token into a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if _, err := s.tokens.ParseRefresh(refreshToken); err != nil {
		return Session{}, ErrRefreshInvalid
	}
	userID, err := s.store.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if !u.IsApproved {
		return Session{}, ErrNotApproved
	}
	return s.issue(ctx, u)
}

func (s *Service) issue(ctx context.Context, u User) (Session, error) {
	sess, err := s.tokens.IssuePair(u)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.store.SaveRefreshToken(ctx, u.ID, sess.RefreshToken, sess.RefreshExpiresAt); err != nil {
		return Session{}, fmt.Errorf("save refresh token: %w", err)
	}
	sess.User = u
	return sess, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns users matching the filter.
func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	return s.store.ListUsers(ctx, f)
}

// ListPending returns accounts awaiting HR approval.
func (s *Service) ListPending(ctx context.Context) ([]User, error) {
	approved := false
	return s.store.ListUsers(ctx, UserFilter{Approved: &approved})
}

// Approve marks an account approved.
func (s *Service) Approve(ctx context.Context, userID string) (User, error) {
	if err := s.store.SetApproved(ctx, userID, true); err != nil {
		return User{}, err
	}
	s.logger.Info("user approved", zap.String("user_id", userID))
	return s.store.GetUser(ctx, userID)
}

// CreateDepartment adds a department.
func (s *Service) CreateDepartment(ctx context.Context, name string) (Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Department{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	d := Department{Name: name}
	if err := s.store.CreateDepartment(ctx, &d); err != nil {
		return Department{}, err
	}
	return d, nil
}

// ListDepartments returns all departments.
func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.store.ListDepartments(ctx)
}

// AssignHOD makes a HOD-role member of the department its head.
func (s *Service) AssignHOD(ctx context.Context, departmentID, userID string) (Department, error) {
	d, err := s.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return Department{}, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Department{}, err
	}
	if u.Role != RoleHOD || u.Department() != d.ID {
		return Department{}, ErrNotHOD
	}
	if err := s.store.SetDepartmentHOD(ctx, d.ID, u.ID); err != nil {
		return Department{}, err
	}
	d.HODID = &u.ID
	return d, nil
}
