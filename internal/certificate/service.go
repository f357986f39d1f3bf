package certificate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"stafftracker/internal/identity"
	"stafftracker/internal/training"
)

// Store is the persistence the certificate service needs.
type Store interface {
	Create(ctx context.Context, c *Certificate) error
	Get(ctx context.Context, id string) (Certificate, error)
	UpdateExpiry(ctx context.Context, id string, expiry time.Time) error
	List(ctx context.Context, f Filter) ([]Certificate, error)
}

// TrainingLookup resolves trainings.
type TrainingLookup interface {
	GetTraining(ctx context.Context, id string) (training.Training, error)
}

// UserLookup resolves accounts.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// IssueInput describes a new certificate.
type IssueInput struct {
	UserID     string `json:"user_id" binding:"required"`
	TrainingID string `json:"training_id" binding:"required"`
	IssueDate  string `json:"issue_date" binding:"required"`
	ExpiryDate string `json:"expiry_date" binding:"required"`
}

// Service issues and manages certificates.
type Service struct {
	store     Store
	trainings TrainingLookup
	users     UserLookup
	logger    *zap.Logger
}

// NewService creates a certificate service.
func NewService(store Store, trainings TrainingLookup, users UserLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, trainings: trainings, users: users, logger: logger}
}

func canManage(actor identity.Actor, t training.Training) bool {
	return actor.Is(identity.RoleHR) || (actor.Is(identity.RoleTrainer) && t.TrainerID == actor.ID)
}

// Issue creates a certificate. HR or the training's trainer may issue.
func (s *Service) Issue(ctx context.Context, actor identity.Actor, in IssueInput) (Certificate, error) {
	issue, err := ParseDate(in.IssueDate)
	if err != nil {
		return Certificate{}, err
	}
	expiry, err := ParseDate(in.ExpiryDate)
	if err != nil {
		return Certificate{}, err
	}
	if !expiry.After(issue) {
		return Certificate{}, ErrExpiryBeforeIssue
	}
	t, err := s.trainings.GetTraining(ctx, in.TrainingID)
	if err != nil {
		return Certificate{}, err
	}
	if !canManage(actor, t) {
		return Certificate{}, ErrForbidden
	}
	holder, err := s.users.GetUser(ctx, in.UserID)
	if errors.Is(err, identity.ErrNotFound) {
		return Certificate{}, ErrUserNotFound
	}
	if err != nil {
		return Certificate{}, err
	}

	c := Certificate{
		UserID:        holder.ID,
		TrainingID:    t.ID,
		IssueDate:     issue,
		ExpiryDate:    expiry,
		TrainingTitle: t.Title,
		TrainerID:     t.TrainerID,
		Username:      holder.Username,
		FullName:      holder.FullName,
		Email:         holder.Email,
	}
	if err := s.store.Create(ctx, &c); err != nil {
		return Certificate{}, err
	}
	s.logger.Info("certificate issued", zap.String("certificate_id", c.ID), zap.String("user_id", c.UserID))
	return c, nil
}

// UpdateExpiry moves the expiry date, which re-arms both reminders.
func (s *Service) UpdateExpiry(ctx context.Context, actor identity.Actor, id, expiryDate string) (Certificate, error) {
	expiry, err := ParseDate(expiryDate)
	if err != nil {
		return Certificate{}, err
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if !actor.Is(identity.RoleHR) && !(actor.Is(identity.RoleTrainer) && c.TrainerID == actor.ID) {
		return Certificate{}, ErrForbidden
	}
	if !expiry.After(c.IssueDate) {
		return Certificate{}, ErrExpiryBeforeIssue
	}
	if err := s.store.UpdateExpiry(ctx, c.ID, expiry); err != nil {
		return Certificate{}, err
	}
	return s.store.Get(ctx, c.ID)
}

// Mine lists the user's certificates.
func (s *Service) Mine(ctx context.Context, userID string) ([]Certificate, error) {
	return s.store.List(ctx, Filter{UserID: userID})
}

// All lists every certificate. HR only.
func (s *Service) All(ctx context.Context, actor identity.Actor, f Filter) ([]Certificate, error) {
	if !actor.Is(identity.RoleHR) {
		return nil, ErrForbidden
	}
	return s.store.List(ctx, f)
}

// Get returns a certificate for preview by its holder, its trainer or HR.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id string) (Certificate, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if c.UserID != actor.ID && !actor.Is(identity.RoleHR) && !(actor.Is(identity.RoleTrainer) && c.TrainerID == actor.ID) {
		return Certificate{}, ErrForbidden
	}
	return c, nil
}
