package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stafftracker/internal/store"
)

// Repository persists questions and submissions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const questionColumns = `id, training_id, phase, question_text, option_a, option_b, option_c, option_d, correct_answer, marks, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.TrainingID, &q.Phase, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.CorrectAnswer, &q.Marks, &q.CreatedAt)
	return q, err
}

// CreateQuestion inserts a question.
func (r *Repository) CreateQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO assessment_questions (id, training_id, phase, question_text, option_a, option_b, option_c, option_d, correct_answer, marks)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, q.ID, q.TrainingID, q.Phase, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectAnswer, q.Marks)
	if err := row.Scan(&q.CreatedAt); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// GetQuestion returns a question by id.
func (r *Repository) GetQuestion(ctx context.Context, id string) (Question, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Question{}, ErrQuestionNotFound
	}
	q, err := scanQuestion(r.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM assessment_questions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	return q, err
}

// UpdateQuestion overwrites a question's text, options, answer and marks.
func (r *Repository) UpdateQuestion(ctx context.Context, q Question) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assessment_questions
		SET phase = $2, question_text = $3, option_a = $4, option_b = $5, option_c = $6, option_d = $7,
		    correct_answer = $8, marks = $9
		WHERE id = $1
	`, q.ID, q.Phase, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectAnswer, q.Marks)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// DeleteQuestion removes a question.
func (r *Repository) DeleteQuestion(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assessment_questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// ListQuestions returns the questions of one phase in creation order.
func (r *Repository) ListQuestions(ctx context.Context, trainingID string, phase Phase) ([]Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+questionColumns+` FROM assessment_questions
		WHERE training_id = $1 AND phase = $2
		ORDER BY created_at, id
	`, trainingID, phase)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// HasSubmission reports whether the user already submitted the phase.
func (r *Repository) HasSubmission(ctx context.Context, trainingID, userID string, phase Phase) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assessment_submissions WHERE training_id = $1 AND user_id = $2 AND phase = $3
		)
	`, trainingID, userID, phase).Scan(&exists)
	return exists, err
}

// CreateSubmission stores a scored submission.
func (r *Repository) CreateSubmission(ctx context.Context, s *Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO assessment_submissions (id, training_id, user_id, phase, answers, score, stress_level, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING submitted_at
	`, s.ID, s.TrainingID, s.UserID, s.Phase, string(answers), s.Score, s.StressLevel, s.Status)
	if err := row.Scan(&s.SubmittedAt); err != nil {
		if store.IsUniqueViolation(err, "assessment_submissions_user_training_phase_key") {
			return ErrAlreadySubmitted
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListSubmissionsByUser returns a user's submissions, newest first.
func (r *Repository) ListSubmissionsByUser(ctx context.Context, userID string) ([]Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.training_id, t.title, s.user_id, s.phase, s.answers, s.score, s.stress_level, s.status, s.submitted_at
		FROM assessment_submissions s
		JOIN trainings t ON t.id = s.training_id
		WHERE s.user_id = $1
		ORDER BY s.submitted_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Submission
	for rows.Next() {
		var s Submission
		var answers []byte
		if err := rows.Scan(&s.ID, &s.TrainingID, &s.TrainingTitle, &s.UserID, &s.Phase, &answers, &s.Score, &s.StressLevel, &s.Status, &s.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
