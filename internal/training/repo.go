package training

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"stafftracker/internal/store"
)

// Repository persists trainings and registrations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const trainingColumns = `id, title, description, starts_at, duration_hours, location, trainer_id, department_id, cpd_points, created_at`

func scanTraining(row interface{ Scan(...any) error }) (Training, error) {
	var t Training
	var dept sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.StartsAt, &t.DurationHours, &t.Location, &t.TrainerID, &dept, &t.CPDPoints, &t.CreatedAt); err != nil {
		return Training{}, err
	}
	if dept.Valid {
		t.DepartmentID = &dept.String
	}
	return t, nil
}

// CreateTraining inserts a training.
func (r *Repository) CreateTraining(ctx context.Context, t *Training) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO trainings (id, title, description, starts_at, duration_hours, location, trainer_id, department_id, cpd_points)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, t.ID, t.Title, t.Description, t.StartsAt, t.DurationHours, t.Location, t.TrainerID, t.DepartmentID, t.CPDPoints)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("insert training: %w", err)
	}
	return nil
}

// GetTraining returns a training by id.
func (r *Repository) GetTraining(ctx context.Context, id string) (Training, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Training{}, ErrNotFound
	}
	t, err := scanTraining(r.db.QueryRowContext(ctx, `SELECT `+trainingColumns+` FROM trainings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Training{}, ErrNotFound
	}
	return t, err
}

// UpdateTraining overwrites the mutable fields.
func (r *Repository) UpdateTraining(ctx context.Context, t Training) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE trainings
		SET title = $2, description = $3, starts_at = $4, duration_hours = $5, location = $6,
		    trainer_id = $7, department_id = $8, cpd_points = $9
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.StartsAt, t.DurationHours, t.Location, t.TrainerID, t.DepartmentID, t.CPDPoints)
	if err != nil {
		return fmt.Errorf("update training: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTraining removes a training; dependent rows cascade.
func (r *Repository) DeleteTraining(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trainings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrainings returns trainings with basic filters, newest first.
func (r *Repository) ListTrainings(ctx context.Context, f Filter) ([]Training, error) {
	q := sq.Select(trainingColumns).From("trainings").OrderBy("starts_at DESC").PlaceholderFormat(sq.Dollar)
	if f.TrainerID != "" {
		q = q.Where(sq.Eq{"trainer_id": f.TrainerID})
	}
	if f.DepartmentID != "" {
		q = q.Where(sq.Eq{"department_id": f.DepartmentID})
	}
	if f.StartsAfter != nil {
		q = q.Where(sq.Gt{"starts_at": *f.StartsAfter})
	}
	if f.EndedBefore != nil {
		q = q.Where(sq.Expr("starts_at + duration_hours * INTERVAL '1 hour' <= ?", *f.EndedBefore))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Training
	for rows.Next() {
		t, err := scanTraining(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

const registrationColumns = `id, training_id, employee_id, status, completion, requested_at, decided_by, decided_at`

func scanRegistration(row interface{ Scan(...any) error }, extra ...any) (Registration, error) {
	var reg Registration
	var decidedBy sql.NullString
	var decidedAt sql.NullTime
	dest := append([]any{&reg.ID, &reg.TrainingID, &reg.EmployeeID, &reg.Status, &reg.Completion, &reg.RequestedAt, &decidedBy, &decidedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Registration{}, err
	}
	if decidedBy.Valid {
		reg.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		reg.DecidedAt = &decidedAt.Time
	}
	return reg, nil
}

// CreateRegistration inserts a pending registration.
func (r *Repository) CreateRegistration(ctx context.Context, reg *Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO training_registrations (id, training_id, employee_id, status, completion)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING requested_at
	`, reg.ID, reg.TrainingID, reg.EmployeeID, reg.Status, reg.Completion)
	if err := row.Scan(&reg.RequestedAt); err != nil {
		if store.IsUniqueViolation(err, "training_registrations_employee_training_key") {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetRegistration returns a registration by id.
func (r *Repository) GetRegistration(ctx context.Context, id string) (Registration, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Registration{}, ErrRegistrationNotFound
	}
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM training_registrations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrRegistrationNotFound
	}
	return reg, err
}

// FindRegistration returns the registration of an employee for a training.
func (r *Repository) FindRegistration(ctx context.Context, trainingID, employeeID string) (Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, `
		SELECT `+registrationColumns+` FROM training_registrations
		WHERE training_id = $1 AND employee_id = $2
	`, trainingID, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrRegistrationNotFound
	}
	return reg, err
}

// UpdateRegistrationStatus records an approval decision.
func (r *Repository) UpdateRegistrationStatus(ctx context.Context, id string, status Status, decidedBy string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE training_registrations SET status = $2, decided_by = $3, decided_at = $4
		WHERE id = $1
	`, id, status, decidedBy, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// SetCompletion updates the completion status.
func (r *Repository) SetCompletion(ctx context.Context, id string, completion Completion) error {
	res, err := r.db.ExecContext(ctx, `UPDATE training_registrations SET completion = $2 WHERE id = $1`, id, completion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// ListRegistrations returns registrations joined with training and employee names.
func (r *Repository) ListRegistrations(ctx context.Context, f RegistrationFilter) ([]RegistrationView, error) {
	q := sq.Select(
		"r.id", "r.training_id", "r.employee_id", "r.status", "r.completion", "r.requested_at", "r.decided_by", "r.decided_at",
		"t.title", "COALESCE(NULLIF(u.full_name, ''), u.username)", "COALESCE(u.department_id::text, '')",
	).
		From("training_registrations r").
		Join("trainings t ON t.id = r.training_id").
		Join("users u ON u.id = r.employee_id").
		OrderBy("r.requested_at DESC").
		PlaceholderFormat(sq.Dollar)
	if f.TrainingID != "" {
		q = q.Where(sq.Eq{"r.training_id": f.TrainingID})
	}
	if f.EmployeeID != "" {
		q = q.Where(sq.Eq{"r.employee_id": f.EmployeeID})
	}
	if f.DepartmentID != "" {
		q = q.Where(sq.Eq{"u.department_id": f.DepartmentID})
	}
	if f.TrainerID != "" {
		q = q.Where(sq.Eq{"t.trainer_id": f.TrainerID})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"r.status": f.Status})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RegistrationView
	for rows.Next() {
		var v RegistrationView
		reg, err := scanRegistration(rows, &v.TrainingTitle, &v.EmployeeName, &v.DepartmentID)
		if err != nil {
			return nil, err
		}
		v.Registration = reg
		res = append(res, v)
	}
	return res, rows.Err()
}
