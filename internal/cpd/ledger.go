package cpd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stafftracker/internal/store"
)

// Record is one CPD accrual event.
type Record struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TrainingID    string    `json:"training_id"`
	TrainingTitle string    `json:"training_title,omitempty"`
	Points        int       `json:"points"`
	EarnedDate    time.Time `json:"earned_date"`
}

// Summary is a user's ledger with its running total.
type Summary struct {
	Records     []Record `json:"records"`
	TotalPoints int      `json:"total_points"`
}

// Ledger persists CPD records.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append writes a record using q, which may be the caller's transaction.
func (l *Ledger) Append(ctx context.Context, q store.Querier, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.EarnedDate.IsZero() {
		r.EarnedDate = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO cpd_records (id, user_id, training_id, points, earned_date)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.UserID, r.TrainingID, r.Points, r.EarnedDate)
	if err != nil {
		return fmt.Errorf("append cpd record: %w", err)
	}
	return nil
}

// ListByUser returns a user's records, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.training_id, t.title, c.points, c.earned_date
		FROM cpd_records c
		JOIN trainings t ON t.id = c.training_id
		WHERE c.user_id = $1
		ORDER BY c.earned_date DESC, c.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.TrainingID, &r.TrainingTitle, &r.Points, &r.EarnedDate); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Summarize totals a user's records.
func (l *Ledger) Summarize(ctx context.Context, userID string) (Summary, error) {
	records, err := l.ListByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return NewSummary(records), nil
}

// NewSummary totals the points of records.
func NewSummary(records []Record) Summary {
	s := Summary{Records: records}
	if s.Records == nil {
		s.Records = []Record{}
	}
	for _, r := range records {
		s.TotalPoints += r.Points
	}
	return s
}
