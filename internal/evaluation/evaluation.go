package evaluation

import (
	"errors"
	"math"
	"time"
)

// Evaluation is an attendee's feedback on a training.
type Evaluation struct {
	ID             string    `json:"id"`
	TrainingID     string    `json:"training_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	Rating         int       `json:"rating" validate:"min=1,max=5"`
	Organization   int       `json:"organization" validate:"min=1,max=5"`
	TrainerSkill   int       `json:"trainer_skill" validate:"min=1,max=5"`
	Relevance      int       `json:"relevance" validate:"min=1,max=5"`
	Materials      int       `json:"materials" validate:"min=1,max=5"`
	WouldRecommend bool      `json:"would_recommend"`
	Feedback       string    `json:"feedback" validate:"max=5000"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Average is the mean of the overall and four question ratings.
func (e Evaluation) Average() float64 {
	sum := e.Rating + e.Organization + e.TrainerSkill + e.Relevance + e.Materials
	return round2(float64(sum) / 5)
}

// Summary aggregates the evaluations of one training.
type Summary struct {
	TrainingID       string  `json:"training_id"`
	Count            int     `json:"count"`
	AverageRating    float64 `json:"average_rating"`
	Organization     float64 `json:"organization"`
	TrainerSkill     float64 `json:"trainer_skill"`
	Relevance        float64 `json:"relevance"`
	Materials        float64 `json:"materials"`
	RecommendPercent float64 `json:"recommend_percent"`
}

// Summarize averages the ratings of evals.
func Summarize(trainingID string, evals []Evaluation) Summary {
	s := Summary{TrainingID: trainingID, Count: len(evals)}
	if s.Count == 0 {
		return s
	}
	var rating, org, skill, rel, mat, rec int
	for _, e := range evals {
		rating += e.Rating
		org += e.Organization
		skill += e.TrainerSkill
		rel += e.Relevance
		mat += e.Materials
		if e.WouldRecommend {
			rec++
		}
	}
	n := float64(s.Count)
	s.AverageRating = round2(float64(rating) / n)
	s.Organization = round2(float64(org) / n)
	s.TrainerSkill = round2(float64(skill) / n)
	s.Relevance = round2(float64(rel) / n)
	s.Materials = round2(float64(mat) / n)
	s.RecommendPercent = round2(float64(rec) * 100 / n)
	return s
}

var (
	ErrAlreadyEvaluated = errors.New("you have already evaluated this training")
	ErrValidation       = errors.New("validation failed")
	ErrNotAttendee      = errors.New("only approved registrants can evaluate a training")
	ErrForbidden        = errors.New("permission denied")
)
