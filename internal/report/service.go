package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stafftracker/internal/attendance"
	"stafftracker/internal/certificate"
	"stafftracker/internal/identity"
)

// Store runs the report queries.
type Store interface {
	CPD(ctx context.Context, f CPDFilter) ([]CPDRow, error)
	Attendance(ctx context.Context, f AttendanceFilter) ([]AttendanceRow, error)
	Expiring(ctx context.Context, until time.Time, departmentID string) ([]ExpiringRow, error)
}

// Service builds role-scoped reports.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a report service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// scope returns the department the actor may report on. HR may pick any
// department (or none); a HOD is pinned to their own.
func scope(actor identity.Actor, requested string) (string, error) {
	switch {
	case actor.Is(identity.RoleHR):
		return requested, nil
	case actor.Is(identity.RoleHOD) && actor.DepartmentID != "":
		return actor.DepartmentID, nil
	default:
		return "", ErrForbidden
	}
}

// CPD returns CPD rows and the total of their points.
func (s *Service) CPD(ctx context.Context, actor identity.Actor, f CPDFilter) (CPDReport, error) {
	dept, err := scope(actor, f.DepartmentID)
	if err != nil {
		return CPDReport{}, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return CPDReport{}, ErrInvalidFilter
	}
	f.DepartmentID = dept
	rows, err := s.store.CPD(ctx, f)
	if err != nil {
		return CPDReport{}, err
	}
	rep := CPDReport{Rows: rows}
	for _, r := range rows {
		rep.TotalPoints += r.Points
	}
	return rep, nil
}

// Attendance returns attendance rows.
func (s *Service) Attendance(ctx context.Context, actor identity.Actor, f AttendanceFilter) ([]AttendanceRow, error) {
	dept, err := scope(actor, f.DepartmentID)
	if err != nil {
		return nil, err
	}
	switch attendance.Status(f.Status) {
	case "", attendance.StatusPresent, attendance.StatusAbsent:
	default:
		return nil, ErrInvalidFilter
	}
	f.DepartmentID = dept
	return s.store.Attendance(ctx, f)
}

// Expiring lists certificates expiring within ExpiryWindowDays,
// including those already expired.
func (s *Service) Expiring(ctx context.Context, actor identity.Actor, departmentID string) ([]ExpiringRow, error) {
	dept, err := scope(actor, departmentID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	until := now.AddDate(0, 0, ExpiryWindowDays)
	rows, err := s.store.Expiring(ctx, until, dept)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].DaysLeft = certificate.DaysUntilExpiry(certificate.Certificate{ExpiryDate: rows[i].ExpiryDate}, now)
	}
	return rows, nil
}
