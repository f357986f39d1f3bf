package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stafftracker/internal/cpd"
	"stafftracker/internal/store"
)

// Ledger appends CPD credit inside a caller's transaction.
type Ledger interface {
	Append(ctx context.Context, q store.Querier, r *cpd.Record) error
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db     *sql.DB
	ledger Ledger
}

// NewRepository creates a repo. Check-ins credit CPD through ledger.
func NewRepository(db *sql.DB, ledger Ledger) *Repository {
	return &Repository{db: db, ledger: ledger}
}

const recordColumns = `id, training_id, user_id, status, check_in_time, date, token_expires_at, created_at`

func scanRecord(row interface{ Scan(...any) error }, extra ...any) (Record, error) {
	var rec Record
	var userID sql.NullString
	var checkIn, expires sql.NullTime
	dest := append([]any{&rec.ID, &rec.TrainingID, &userID, &rec.Status, &checkIn, &rec.Date, &expires, &rec.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Record{}, err
	}
	if userID.Valid {
		rec.UserID = &userID.String
	}
	if checkIn.Valid {
		rec.CheckInTime = &checkIn.Time
	}
	if expires.Valid {
		rec.TokenExpiresAt = &expires.Time
	}
	return rec, nil
}

// CreatePlaceholder inserts an unbound Absent row that serves as a QR token.
func (r *Repository) CreatePlaceholder(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, training_id, status, date, token_expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rec.ID, rec.TrainingID, StatusAbsent, rec.Date, rec.TokenExpiresAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return fmt.Errorf("insert placeholder: %w", err)
	}
	rec.Status = StatusAbsent
	return nil
}

// GetRecord returns an attendance row by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrTokenInvalid
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrTokenInvalid
	}
	return rec, err
}

// HasPresent reports whether the user already has a Present row for the
// training other than excludeID.
func (r *Repository) HasPresent(ctx context.Context, trainingID, userID, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance
			WHERE training_id = $1 AND user_id = $2 AND status = 'Present' AND id::text <> $3
		)
	`, trainingID, userID, excludeID).Scan(&exists)
	return exists, err
}

// Claim binds a placeholder to a user as Present and credits CPD in one
// transaction. A sweep-created Absent row for the same user is replaced.
func (r *Repository) Claim(ctx context.Context, tokenID, userID string, at time.Time, credit *cpd.Record) (Record, error) {
	var rec Record
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM attendance
			WHERE training_id = (SELECT training_id FROM attendance WHERE id = $1)
			  AND user_id = $2 AND status = 'Absent' AND id <> $1
		`, tokenID, userID); err != nil {
			return fmt.Errorf("clear absent row: %w", err)
		}

		var err error
		rec, err = scanRecord(tx.QueryRowContext(ctx, `
			UPDATE attendance
			SET user_id = $2, status = 'Present', check_in_time = $3, date = $4
			WHERE id = $1 AND user_id IS NULL
			RETURNING `+recordColumns,
			tokenID, userID, at, at))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenUsed
		}
		if store.IsUniqueViolation(err, "attendance_user_training_key") {
			return ErrAlreadyCheckedIn
		}
		if err != nil {
			return fmt.Errorf("claim token: %w", err)
		}
		return r.ledger.Append(ctx, tx, credit)
	})
	return rec, err
}

// MarkPresent records a manual check-in and credits CPD in one transaction.
func (r *Repository) MarkPresent(ctx context.Context, trainingID, userID string, at time.Time, credit *cpd.Record) (Record, error) {
	var rec Record
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM attendance
			WHERE training_id = $1 AND user_id = $2 AND status = 'Absent'
		`, trainingID, userID); err != nil {
			return fmt.Errorf("clear absent row: %w", err)
		}

		var err error
		rec, err = scanRecord(tx.QueryRowContext(ctx, `
			INSERT INTO attendance (id, training_id, user_id, status, check_in_time, date)
			VALUES ($1, $2, $3, 'Present', $4, $5)
			RETURNING `+recordColumns,
			uuid.NewString(), trainingID, userID, at, at))
		if store.IsUniqueViolation(err, "attendance_user_training_key") {
			return ErrAlreadyCheckedIn
		}
		if err != nil {
			return fmt.Errorf("insert attendance: %w", err)
		}
		return r.ledger.Append(ctx, tx, credit)
	})
	return rec, err
}

// SweepAbsent writes an Absent row for every approved registrant of the
// training that has no user-bound row, and marks those registrations
// completed. Running it again changes nothing.
func (r *Repository) SweepAbsent(ctx context.Context, trainingID string, day time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH absent AS (
			INSERT INTO attendance (id, training_id, user_id, status, date)
			SELECT gen_random_uuid(), reg.training_id, reg.employee_id, 'Absent', $2
			FROM training_registrations reg
			WHERE reg.training_id = $1
			  AND reg.status = 'Approved'
			  AND NOT EXISTS (
				SELECT 1 FROM attendance a
				WHERE a.training_id = reg.training_id AND a.user_id = reg.employee_id
			  )
			ON CONFLICT ON CONSTRAINT attendance_user_training_key DO NOTHING
			RETURNING user_id
		)
		UPDATE training_registrations
		SET completion = 'Completed'
		WHERE training_id = $1 AND employee_id IN (SELECT user_id FROM absent)
	`, trainingID, day)
	if err != nil {
		return 0, fmt.Errorf("sweep absent: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListByTraining returns the user-bound rows of a training.
func (r *Repository) ListByTraining(ctx context.Context, trainingID string) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.training_id, a.user_id, a.status, a.check_in_time, a.date, a.token_expires_at, a.created_at,
		       u.username, u.full_name, u.email
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.training_id = $1
		ORDER BY u.username
	`, trainingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Row
	for rows.Next() {
		var row Row
		rec, err := scanRecord(rows, &row.Username, &row.FullName, &row.Email)
		if err != nil {
			return nil, err
		}
		row.Record = rec
		res = append(res, row)
	}
	return res, rows.Err()
}

// PurgeExpiredTokens removes unredeemed placeholders that expired before the cutoff.
func (r *Repository) PurgeExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance
		WHERE user_id IS NULL AND token_expires_at IS NOT NULL AND token_expires_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
