package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stafftracker/internal/cpd"
	"stafftracker/internal/identity"
	"stafftracker/internal/metrics"
	"stafftracker/internal/training"
)

// Store is the persistence the attendance service needs.
type Store interface {
	CreatePlaceholder(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (Record, error)
	HasPresent(ctx context.Context, trainingID, userID, excludeID string) (bool, error)
	Claim(ctx context.Context, tokenID, userID string, at time.Time, credit *cpd.Record) (Record, error)
	MarkPresent(ctx context.Context, trainingID, userID string, at time.Time, credit *cpd.Record) (Record, error)
	SweepAbsent(ctx context.Context, trainingID string, day time.Time) (int, error)
	ListByTraining(ctx context.Context, trainingID string) ([]Row, error)
	PurgeExpiredTokens(ctx context.Context, before time.Time) (int, error)
}

// TrainingLookup reads trainings and registrations.
type TrainingLookup interface {
	GetTraining(ctx context.Context, id string) (training.Training, error)
	FindRegistration(ctx context.Context, trainingID, employeeID string) (training.Registration, error)
	ListTrainings(ctx context.Context, f training.Filter) ([]training.Training, error)
}

// Credentials verifies a username and password.
type Credentials interface {
	Authenticate(ctx context.Context, username, password string) (identity.User, error)
}

// UserLookup resolves accounts by id.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// SweepResult reports the outcome of sweeping one training.
type SweepResult struct {
	TrainingID string `json:"training_id"`
	Title      string `json:"title"`
	Marked     int    `json:"marked_absent"`
}

// Service coordinates QR tokens, check-ins and the absence sweep.
type Service struct {
	store     Store
	trainings TrainingLookup
	creds     Credentials
	users     UserLookup
	tokenTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, trainings TrainingLookup, creds Credentials, users UserLookup, tokenTTL time.Duration, logger *zap.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		trainings: trainings,
		creds:     creds,
		users:     users,
		tokenTTL:  tokenTTL,
		logger:    logger,
		now:       time.Now,
	}
}

func canManage(actor identity.Actor, t training.Training) bool {
	return actor.Is(identity.RoleHR) || (actor.Is(identity.RoleTrainer) && t.TrainerID == actor.ID)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "rejected"
}

// GenerateCheckinToken creates a placeholder row and renders its id as a QR code.
func (s *Service) GenerateCheckinToken(ctx context.Context, actor identity.Actor, trainingID string) (Token, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return Token{}, err
	}
	if !canManage(actor, t) {
		return Token{}, ErrForbidden
	}

	now := s.now().UTC()
	expires := now.Add(s.tokenTTL)
	rec := Record{TrainingID: t.ID, Date: now, TokenExpiresAt: &expires}
	if err := s.store.CreatePlaceholder(ctx, &rec); err != nil {
		return Token{}, err
	}
	payload, image, err := renderQR(newPayload(t.ID, t.Title, rec.ID, now, expires))
	if err != nil {
		return Token{}, err
	}
	metrics.TokensIssued.Inc()
	s.logger.Info("checkin token issued", zap.String("training_id", t.ID), zap.String("attendance_id", rec.ID))
	return Token{
		AttendanceID:  rec.ID,
		TrainingID:    t.ID,
		TrainingTitle: t.Title,
		Payload:       payload,
		Image:         image,
		ExpiresAt:     expires,
	}, nil
}

// RedeemToken checks a user in with a QR token and their credentials.
func (s *Service) RedeemToken(ctx context.Context, token, username, password string) (CheckIn, error) {
	res, err := s.redeem(ctx, strings.TrimSpace(token), strings.TrimSpace(username), password)
	metrics.CheckIns.WithLabelValues("qr", outcome(err)).Inc()
	return res, err
}

func (s *Service) redeem(ctx context.Context, token, username, password string) (CheckIn, error) {
	if token == "" || username == "" || password == "" {
		return CheckIn{}, fmt.Errorf("%w: attendance_id, username and password are required", ErrValidation)
	}

	rec, err := s.store.GetRecord(ctx, token)
	if err != nil {
		return CheckIn{}, err
	}
	if rec.TokenExpiresAt == nil {
		return CheckIn{}, ErrTokenInvalid
	}
	now := s.now().UTC()
	if now.After(*rec.TokenExpiresAt) {
		return CheckIn{}, ErrTokenExpired
	}
	if rec.Redeemed() {
		return CheckIn{}, ErrTokenUsed
	}

	u, err := s.creds.Authenticate(ctx, username, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return CheckIn{}, ErrInvalidCredentials
	}
	if err != nil {
		return CheckIn{}, err
	}
	if err := eligible(u); err != nil {
		return CheckIn{}, err
	}
	if err := s.checkRegistration(ctx, rec.TrainingID, u.ID); err != nil {
		return CheckIn{}, err
	}
	present, err := s.store.HasPresent(ctx, rec.TrainingID, u.ID, rec.ID)
	if err != nil {
		return CheckIn{}, err
	}
	if present {
		return CheckIn{}, ErrAlreadyCheckedIn
	}

	t, err := s.trainings.GetTraining(ctx, rec.TrainingID)
	if err != nil {
		return CheckIn{}, err
	}
	credit := &cpd.Record{UserID: u.ID, TrainingID: t.ID, Points: t.CPDPoints, EarnedDate: now}
	claimed, err := s.store.Claim(ctx, rec.ID, u.ID, now, credit)
	if err != nil {
		return CheckIn{}, err
	}
	s.logger.Info("checked in",
		zap.String("method", "qr"),
		zap.String("training_id", t.ID),
		zap.String("user_id", u.ID),
		zap.Int("cpd_points", t.CPDPoints),
	)
	return CheckIn{Record: claimed, Username: u.Username, CPDPoints: t.CPDPoints}, nil
}

func eligible(u identity.User) error {
	if u.Role != identity.RoleEmployee {
		return ErrNotEmployee
	}
	if !u.IsApproved {
		return ErrNotApproved
	}
	return nil
}

func (s *Service) checkRegistration(ctx context.Context, trainingID, userID string) error {
	reg, err := s.trainings.FindRegistration(ctx, trainingID, userID)
	if errors.Is(err, training.ErrRegistrationNotFound) {
		return ErrNotRegistered
	}
	if err != nil {
		return err
	}
	if reg.Status != training.StatusApproved {
		return ErrRegistrationNotApproved
	}
	return nil
}

// ManualCheckIn marks a registered employee present without a token.
func (s *Service) ManualCheckIn(ctx context.Context, actor identity.Actor, trainingID, userID string) (CheckIn, error) {
	res, err := s.manual(ctx, actor, trainingID, userID)
	metrics.CheckIns.WithLabelValues("manual", outcome(err)).Inc()
	return res, err
}

func (s *Service) manual(ctx context.Context, actor identity.Actor, trainingID, userID string) (CheckIn, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return CheckIn{}, err
	}
	if !canManage(actor, t) {
		return CheckIn{}, ErrForbidden
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return CheckIn{}, err
	}
	if err := eligible(u); err != nil {
		return CheckIn{}, err
	}
	if err := s.checkRegistration(ctx, t.ID, u.ID); err != nil {
		return CheckIn{}, err
	}
	present, err := s.store.HasPresent(ctx, t.ID, u.ID, "")
	if err != nil {
		return CheckIn{}, err
	}
	if present {
		return CheckIn{}, ErrAlreadyCheckedIn
	}

	now := s.now().UTC()
	credit := &cpd.Record{UserID: u.ID, TrainingID: t.ID, Points: t.CPDPoints, EarnedDate: now}
	rec, err := s.store.MarkPresent(ctx, t.ID, u.ID, now, credit)
	if err != nil {
		return CheckIn{}, err
	}
	s.logger.Info("checked in",
		zap.String("method", "manual"),
		zap.String("training_id", t.ID),
		zap.String("user_id", u.ID),
		zap.String("by", actor.ID),
	)
	return CheckIn{Record: rec, Username: u.Username, CPDPoints: t.CPDPoints}, nil
}

// TrainingAttendance returns the attendance sheet of a training.
func (s *Service) TrainingAttendance(ctx context.Context, actor identity.Actor, trainingID string) (Sheet, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return Sheet{}, err
	}
	if !canManage(actor, t) && !actor.Is(identity.RoleHOD) {
		return Sheet{}, ErrForbidden
	}
	rows, err := s.store.ListByTraining(ctx, t.ID)
	if err != nil {
		return Sheet{}, err
	}
	return NewSheet(t.ID, rows), nil
}

// Sweep marks approved registrants without attendance as Absent once the
// training has ended. force skips the end-time check.
func (s *Service) Sweep(ctx context.Context, trainingID string, force bool) (int, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, t, force)
}

func (s *Service) sweep(ctx context.Context, t training.Training, force bool) (int, error) {
	if !force && !t.Ended(s.now()) {
		return 0, ErrTrainingNotEnded
	}
	marked, err := s.store.SweepAbsent(ctx, t.ID, t.StartsAt)
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		metrics.AbsencesMarked.Add(float64(marked))
		s.logger.Info("marked absent", zap.String("training_id", t.ID), zap.Int("count", marked))
	}
	return marked, nil
}

// SweepAll sweeps every ended training, or every training when forced.
// A failure on one training does not stop the others.
func (s *Service) SweepAll(ctx context.Context, force bool) ([]SweepResult, error) {
	var f training.Filter
	if !force {
		now := s.now().UTC()
		f.EndedBefore = &now
	}
	list, err := s.trainings.ListTrainings(ctx, f)
	if err != nil {
		return nil, err
	}

	var results []SweepResult
	var errs []error
	for _, t := range list {
		marked, err := s.sweep(ctx, t, force)
		if errors.Is(err, ErrTrainingNotEnded) {
			continue
		}
		if err != nil {
			s.logger.Error("sweep failed", zap.String("training_id", t.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("training %s: %w", t.ID, err))
			continue
		}
		results = append(results, SweepResult{TrainingID: t.ID, Title: t.Title, Marked: marked})
	}
	return results, errors.Join(errs...)
}

// PurgeExpiredTokens deletes unredeemed QR placeholders that expired more
// than a day ago. Younger ones are kept so late scans still report expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int, error) {
	n, err := s.store.PurgeExpiredTokens(ctx, s.now().UTC().Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired checkin tokens", zap.Int("count", n))
	}
	return n, nil
}
