package evaluation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"stafftracker/internal/store"
)

// Repository persists evaluations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an evaluation; a second one for the same user and
// training is rejected by the unique constraint.
func (r *Repository) Create(ctx context.Context, e *Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO evaluations (id, training_id, user_id, rating, organization, trainer_skill, relevance, materials, would_recommend, feedback)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING evaluated_at
	`, e.ID, e.TrainingID, e.UserID, e.Rating, e.Organization, e.TrainerSkill, e.Relevance, e.Materials, e.WouldRecommend, e.Feedback)
	if err := row.Scan(&e.EvaluatedAt); err != nil {
		if store.IsUniqueViolation(err, "evaluations_training_user_key") {
			return ErrAlreadyEvaluated
		}
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// ListByTraining returns a training's evaluations, newest first.
func (r *Repository) ListByTraining(ctx context.Context, trainingID string) ([]Evaluation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.training_id, e.user_id, u.username, e.rating, e.organization, e.trainer_skill,
		       e.relevance, e.materials, e.would_recommend, e.feedback, e.evaluated_at
		FROM evaluations e
		JOIN users u ON u.id = e.user_id
		WHERE e.training_id = $1
		ORDER BY e.evaluated_at DESC
	`, trainingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Evaluation
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(&e.ID, &e.TrainingID, &e.UserID, &e.Username, &e.Rating, &e.Organization, &e.TrainerSkill,
			&e.Relevance, &e.Materials, &e.WouldRecommend, &e.Feedback, &e.EvaluatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
