package assessment

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Phase tells pre-training from post-training assessments.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// ParsePhase validates a phase from a path or body.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhasePre, PhasePost:
		return p, nil
	}
	return "", ErrInvalidPhase
}

// Question is a multiple-choice question with options A to D.
type Question struct {
	ID            string    `json:"id"`
	TrainingID    string    `json:"training_id"`
	Phase         Phase     `json:"phase"`
	Text          string    `json:"question_text"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Marks         int       `json:"marks"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public hides the correct answer.
func (q Question) Public() Question {
	q.CorrectAnswer = ""
	return q
}

// StatusCompleted is the only status a stored submission has.
const StatusCompleted = "Completed"

// Submission is a user's answers for one phase of a training.
type Submission struct {
	ID            string            `json:"id"`
	TrainingID    string            `json:"training_id"`
	TrainingTitle string            `json:"training_title,omitempty"`
	UserID        string            `json:"user_id"`
	Phase         Phase             `json:"phase"`
	Answers       map[string]string `json:"answers"`
	Score         float64           `json:"score"`
	StressLevel   string            `json:"stress_level,omitempty"`
	Status        string            `json:"status"`
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// Score returns the percentage of marks earned, rounded to two decimals.
// Answers map question id to the chosen option and are compared without
// regard to case or surrounding space.
func Score(questions []Question, answers map[string]string) float64 {
	if len(answers) == 0 {
		return 0
	}
	total, earned := 0, 0
	for _, q := range questions {
		total += q.Marks
		given, ok := answers[q.ID]
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(q.CorrectAnswer)) {
			earned += q.Marks
		}
	}
	if total == 0 {
		return 0
	}
	return math.Round(float64(earned)*100/float64(total)*100) / 100
}

var (
	ErrInvalidPhase     = errors.New("phase must be pre or post")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNoQuestions      = errors.New("no questions for this assessment")
	ErrAlreadySubmitted = errors.New("assessment already submitted")
	ErrNotAvailable     = errors.New("assessment is not available at this stage of the training")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("permission denied")
)
