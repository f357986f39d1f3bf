package certificate

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

// Repository persists certificates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var certificateColumns = []string{
	"c.id", "c.user_id", "c.training_id", "c.issue_date", "c.expiry_date",
	"c.reminder_soon_sent", "c.reminder_expired_sent", "c.created_at",
	"t.title", "t.trainer_id", "u.username", "u.full_name", "u.email",
}

func selectCertificates() sq.SelectBuilder {
	return sq.Select(certificateColumns...).
		From("certificates c").
		Join("trainings t ON t.id = c.training_id").
		Join("users u ON u.id = c.user_id").
		PlaceholderFormat(sq.Dollar)
}

func scanCertificate(row interface{ Scan(...any) error }) (Certificate, error) {
	var c Certificate
	err := row.Scan(&c.ID, &c.UserID, &c.TrainingID, &c.IssueDate, &c.ExpiryDate,
		&c.ReminderSoonSent, &c.ReminderExpiredSent, &c.CreatedAt,
		&c.TrainingTitle, &c.TrainerID, &c.Username, &c.FullName, &c.Email)
	return c, err
}

func (r *Repository) query(ctx context.Context, q sq.SelectBuilder) ([]Certificate, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Create inserts a certificate with both reminder flags unset.
func (r *Repository) Create(ctx context.Context, c *Certificate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO certificates (id, user_id, training_id, issue_date, expiry_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.UserID, c.TrainingID, c.IssueDate, c.ExpiryDate)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if store.IsForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

// Get returns a certificate by id.
func (r *Repository) Get(ctx context.Context, id string) (Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Certificate{}, ErrNotFound
	}
	query, args, err := selectCertificates().Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return Certificate{}, err
	}
	c, err := scanCertificate(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, ErrNotFound
	}
	return c, err
}

// UpdateExpiry sets a new expiry date. Both reminder flags are cleared in
// the same statement when the date actually changes.
func (r *Repository) UpdateExpiry(ctx context.Context, id string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE certificates
		SET reminder_soon_sent    = CASE WHEN expiry_date <> $2::date THEN FALSE ELSE reminder_soon_sent END,
		    reminder_expired_sent = CASE WHEN expiry_date <> $2::date THEN FALSE ELSE reminder_expired_sent END,
		    expiry_date           = $2::date
		WHERE id = $1
	`, id, expiry)
	if err != nil {
		return fmt.Errorf("update expiry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns certificates matching the filter, soonest expiry first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Certificate, error) {
	q := selectCertificates().OrderBy("c.expiry_date", "u.username")
	if f.UserID != "" {
		q = q.Where(sq.Eq{"c.user_id": f.UserID})
	}
	if f.TrainingID != "" {
		q = q.Where(sq.Eq{"c.training_id": f.TrainingID})
	}
	return r.query(ctx, q)
}

// ListReminderCandidates returns certificates of users with an email that
// expire within a week of today and still have a reminder flag unset.
func (r *Repository) ListReminderCandidates(ctx context.Context, today time.Time) ([]Certificate, error) {
	q := selectCertificates().
		Where("u.email <> ''").
		Where("(NOT c.reminder_soon_sent OR NOT c.reminder_expired_sent)").
		Where(sq.Expr("c.expiry_date <= ?::date + 7", today)).
		OrderBy("c.expiry_date")
	return r.query(ctx, q)
}

// MarkReminded sets the flag for the given reminder kind.
func (r *Repository) MarkReminded(ctx context.Context, id string, kind Kind) error {
	column := "reminder_soon_sent"
	if kind == KindExpired {
		column = "reminder_expired_sent"
	}
	res, err := r.db.ExecContext(ctx, `UPDATE certificates SET `+column+` = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
