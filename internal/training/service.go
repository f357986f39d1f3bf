package training

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"stafftracker/internal/identity"
)

// Store is the persistence the catalog needs.
type Store interface {
	CreateTraining(ctx context.Context, t *Training) error
	GetTraining(ctx context.Context, id string) (Training, error)
	UpdateTraining(ctx context.Context, t Training) error
	DeleteTraining(ctx context.Context, id string) error
	ListTrainings(ctx context.Context, f Filter) ([]Training, error)
	CreateRegistration(ctx context.Context, reg *Registration) error
	GetRegistration(ctx context.Context, id string) (Registration, error)
	FindRegistration(ctx context.Context, trainingID, employeeID string) (Registration, error)
	UpdateRegistrationStatus(ctx context.Context, id string, status Status, decidedBy string, at time.Time) error
	SetCompletion(ctx context.Context, id string, completion Completion) error
	ListRegistrations(ctx context.Context, f RegistrationFilter) ([]RegistrationView, error)
}

// UserLookup resolves accounts for eligibility checks.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// Sweeper marks absentees once a training has ended.
type Sweeper interface {
	Sweep(ctx context.Context, trainingID string, force bool) (int, error)
}

// Input carries the writable fields of a training.
type Input struct {
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=5000"`
	StartsAt      time.Time `json:"starts_at" validate:"required"`
	DurationHours float64   `json:"duration_hours" validate:"gt=0,lte=720"`
	Location      string    `json:"location" validate:"max=200"`
	TrainerID     string    `json:"trainer_id"`
	DepartmentID  *string   `json:"department_id"`
	CPDPoints     int       `json:"cpd_points" validate:"gte=0"`
}

// Service implements the training catalog and registrations.
type Service struct {
	store    Store
	users    UserLookup
	sweeper  Sweeper
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a catalog service. sweeper may be nil.
func NewService(store Store, users UserLookup, sweeper Sweeper, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		users:    users,
		sweeper:  sweeper,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) check(in *Input) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.DepartmentID != nil && *in.DepartmentID == "" {
		in.DepartmentID = nil
	}
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) checkTrainer(ctx context.Context, id string) error {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrInvalidTrainer
	}
	if err != nil {
		return err
	}
	if u.Role != identity.RoleTrainer || !u.IsApproved {
		return ErrInvalidTrainer
	}
	return nil
}

func canManage(actor identity.Actor, t Training) bool {
	return actor.Is(identity.RoleHR) || (actor.Is(identity.RoleTrainer) && t.TrainerID == actor.ID)
}

// Create schedules a training. A trainer always runs their own training;
// HR must name one.
func (s *Service) Create(ctx context.Context, actor identity.Actor, in Input) (Training, error) {
	switch {
	case actor.Is(identity.RoleTrainer):
		in.TrainerID = actor.ID
	case actor.Is(identity.RoleHR):
		if in.TrainerID == "" {
			return Training{}, fmt.Errorf("%w: trainer_id is required", ErrValidation)
		}
		if err := s.checkTrainer(ctx, in.TrainerID); err != nil {
			return Training{}, err
		}
	default:
		return Training{}, ErrForbidden
	}
	if err := s.check(&in); err != nil {
		return Training{}, err
	}

	t := Training{
		Title:         in.Title,
		Description:   in.Description,
		StartsAt:      in.StartsAt.UTC(),
		DurationHours: in.DurationHours,
		Location:      in.Location,
		TrainerID:     in.TrainerID,
		DepartmentID:  in.DepartmentID,
		CPDPoints:     in.CPDPoints,
	}
	if err := s.store.CreateTraining(ctx, &t); err != nil {
		return Training{}, err
	}
	s.logger.Info("training created", zap.String("training_id", t.ID), zap.String("trainer_id", t.TrainerID))
	return t, nil
}

// Update rewrites a training. Moving the schedule so that the training is
// already over runs the absence sweep immediately.
func (s *Service) Update(ctx context.Context, actor identity.Actor, id string, in Input) (Training, error) {
	current, err := s.store.GetTraining(ctx, id)
	if err != nil {
		return Training{}, err
	}
	if !canManage(actor, current) {
		return Training{}, ErrForbidden
	}
	if !actor.Is(identity.RoleHR) || in.TrainerID == "" {
		in.TrainerID = current.TrainerID
	} else if in.TrainerID != current.TrainerID {
		if err := s.checkTrainer(ctx, in.TrainerID); err != nil {
			return Training{}, err
		}
	}
	if err := s.check(&in); err != nil {
		return Training{}, err
	}

	updated := current
	updated.Title = in.Title
	updated.Description = in.Description
	updated.StartsAt = in.StartsAt.UTC()
	updated.DurationHours = in.DurationHours
	updated.Location = in.Location
	updated.TrainerID = in.TrainerID
	updated.DepartmentID = in.DepartmentID
	updated.CPDPoints = in.CPDPoints
	if err := s.store.UpdateTraining(ctx, updated); err != nil {
		return Training{}, err
	}

	if updated.scheduleDiffers(current) && updated.Ended(s.now()) && s.sweeper != nil {
		marked, err := s.sweeper.Sweep(ctx, updated.ID, false)
		if err != nil {
			return updated, fmt.Errorf("sweep after reschedule: %w", err)
		}
		s.logger.Info("rescheduled training swept", zap.String("training_id", updated.ID), zap.Int("absent", marked))
	}
	return updated, nil
}

// Delete removes a training and everything attached to it.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, id string) error {
	t, err := s.store.GetTraining(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, t) {
		return ErrForbidden
	}
	if err := s.store.DeleteTraining(ctx, id); err != nil {
		return err
	}
	s.logger.Info("training deleted", zap.String("training_id", id))
	return nil
}

// Get returns a training by id.
func (s *Service) Get(ctx context.Context, id string) (Training, error) {
	return s.store.GetTraining(ctx, id)
}

// List returns trainings matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Training, error) {
	return s.store.ListTrainings(ctx, f)
}

// Register records an approved employee's request to attend.
func (s *Service) Register(ctx context.Context, actor identity.Actor, trainingID string) (Registration, error) {
	if !actor.Is(identity.RoleEmployee) {
		return Registration{}, ErrNotEligible
	}
	u, err := s.users.GetUser(ctx, actor.ID)
	if err != nil {
		return Registration{}, err
	}
	if !u.IsApproved {
		return Registration{}, ErrNotEligible
	}
	t, err := s.store.GetTraining(ctx, trainingID)
	if err != nil {
		return Registration{}, err
	}
	if t.Ended(s.now()) {
		return Registration{}, ErrTrainingClosed
	}

	reg := Registration{
		TrainingID: t.ID,
		EmployeeID: u.ID,
		Status:     StatusPending,
		Completion: NotCompleted,
	}
	if err := s.store.CreateRegistration(ctx, &reg); err != nil {
		return Registration{}, err
	}
	s.logger.Info("registration requested", zap.String("training_id", t.ID), zap.String("employee_id", u.ID))
	return reg, nil
}

// Decide approves or rejects a registration. A HOD may only decide for
// employees of their own department.
func (s *Service) Decide(ctx context.Context, actor identity.Actor, registrationID string, status Status) (Registration, error) {
	if status != StatusApproved && status != StatusRejected {
		return Registration{}, ErrInvalidDecision
	}
	reg, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return Registration{}, err
	}
	switch {
	case actor.Is(identity.RoleHR):
	case actor.Is(identity.RoleHOD):
		emp, err := s.users.GetUser(ctx, reg.EmployeeID)
		if err != nil {
			return Registration{}, err
		}
		if actor.DepartmentID == "" || emp.Department() != actor.DepartmentID {
			return Registration{}, ErrForbidden
		}
	default:
		return Registration{}, ErrForbidden
	}

	at := s.now().UTC()
	if err := s.store.UpdateRegistrationStatus(ctx, reg.ID, status, actor.ID, at); err != nil {
		return Registration{}, err
	}
	reg.Status = status
	reg.DecidedBy = &actor.ID
	reg.DecidedAt = &at
	s.logger.Info("registration decided",
		zap.String("registration_id", reg.ID),
		zap.String("status", string(status)),
		zap.String("decided_by", actor.ID),
	)
	return reg, nil
}

// SetCompletion marks a registration completed or not. Only the training's
// trainer or HR may do this.
func (s *Service) SetCompletion(ctx context.Context, actor identity.Actor, registrationID string, completed bool) (Registration, error) {
	reg, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return Registration{}, err
	}
	t, err := s.store.GetTraining(ctx, reg.TrainingID)
	if err != nil {
		return Registration{}, err
	}
	if !canManage(actor, t) {
		return Registration{}, ErrForbidden
	}
	completion := NotCompleted
	if completed {
		completion = Completed
	}
	if err := s.store.SetCompletion(ctx, reg.ID, completion); err != nil {
		return Registration{}, err
	}
	reg.Completion = completion
	return reg, nil
}

// ListRegistrations returns the registrations visible to the actor.
func (s *Service) ListRegistrations(ctx context.Context, actor identity.Actor, f RegistrationFilter) ([]RegistrationView, error) {
	switch actor.Role {
	case identity.RoleHR:
	case identity.RoleHOD:
		if actor.DepartmentID == "" {
			return nil, ErrForbidden
		}
		f.DepartmentID = actor.DepartmentID
	case identity.RoleTrainer:
		f.TrainerID = actor.ID
	case identity.RoleEmployee:
		f.EmployeeID = actor.ID
	default:
		return nil, ErrForbidden
	}
	return s.store.ListRegistrations(ctx, f)
}
