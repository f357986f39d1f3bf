package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"stafftracker/internal/identity"
	"stafftracker/internal/training"
)

// Store is the persistence evaluations need.
type Store interface {
	Create(ctx context.Context, e *Evaluation) error
	ListByTraining(ctx context.Context, trainingID string) ([]Evaluation, error)
}

// TrainingLookup reads trainings and registrations.
type TrainingLookup interface {
	GetTraining(ctx context.Context, id string) (training.Training, error)
	FindRegistration(ctx context.Context, trainingID, employeeID string) (training.Registration, error)
}

// Service records and summarizes evaluations.
type Service struct {
	store     Store
	trainings TrainingLookup
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewService creates an evaluation service.
func NewService(store Store, trainings TrainingLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, trainings: trainings, validate: validator.New(), logger: logger}
}

// Submit stores an employee's evaluation of a training they were approved for.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, trainingID string, e Evaluation) (Evaluation, error) {
	if !actor.Is(identity.RoleEmployee) {
		return Evaluation{}, ErrNotAttendee
	}
	if err := s.validate.Struct(e); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return Evaluation{}, err
	}
	reg, err := s.trainings.FindRegistration(ctx, t.ID, actor.ID)
	if errors.Is(err, training.ErrRegistrationNotFound) {
		return Evaluation{}, ErrNotAttendee
	}
	if err != nil {
		return Evaluation{}, err
	}
	if reg.Status != training.StatusApproved {
		return Evaluation{}, ErrNotAttendee
	}

	e.ID = ""
	e.TrainingID = t.ID
	e.UserID = actor.ID
	if err := s.store.Create(ctx, &e); err != nil {
		return Evaluation{}, err
	}
	s.logger.Info("training evaluated", zap.String("training_id", t.ID), zap.String("user_id", actor.ID), zap.Float64("average", e.Average()))
	return e, nil
}

func (s *Service) visible(ctx context.Context, actor identity.Actor, trainingID string) (training.Training, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return training.Training{}, err
	}
	switch {
	case actor.Is(identity.RoleHR, identity.RoleHOD):
	case actor.Is(identity.RoleTrainer) && t.TrainerID == actor.ID:
	default:
		return training.Training{}, ErrForbidden
	}
	return t, nil
}

// List returns the evaluations of a training.
func (s *Service) List(ctx context.Context, actor identity.Actor, trainingID string) ([]Evaluation, error) {
	t, err := s.visible(ctx, actor, trainingID)
	if err != nil {
		return nil, err
	}
	return s.store.ListByTraining(ctx, t.ID)
}

// Summary aggregates the evaluations of a training.
func (s *Service) Summary(ctx context.Context, actor identity.Actor, trainingID string) (Summary, error) {
	evals, err := s.List(ctx, actor, trainingID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(trainingID, evals), nil
}
