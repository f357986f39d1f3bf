package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"stafftracker/internal/identity"
	"stafftracker/internal/training"
)

// Store is the persistence the assessment service needs.
type Store interface {
	CreateQuestion(ctx context.Context, q *Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	UpdateQuestion(ctx context.Context, q Question) error
	DeleteQuestion(ctx context.Context, id string) error
	ListQuestions(ctx context.Context, trainingID string, phase Phase) ([]Question, error)
	HasSubmission(ctx context.Context, trainingID, userID string, phase Phase) (bool, error)
	CreateSubmission(ctx context.Context, s *Submission) error
	ListSubmissionsByUser(ctx context.Context, userID string) ([]Submission, error)
}

// TrainingLookup resolves trainings.
type TrainingLookup interface {
	GetTraining(ctx context.Context, id string) (training.Training, error)
}

// QuestionInput is the writable part of a question.
type QuestionInput struct {
	Phase         Phase  `json:"phase"`
	Text          string `json:"question_text" validate:"required,max=2000"`
	OptionA       string `json:"option_a" validate:"required,max=500"`
	OptionB       string `json:"option_b" validate:"required,max=500"`
	OptionC       string `json:"option_c" validate:"max=500"`
	OptionD       string `json:"option_d" validate:"max=500"`
	CorrectAnswer string `json:"correct_answer" validate:"required,oneof=A B C D"`
	Marks         *int   `json:"marks" validate:"omitempty,gte=0,lte=100"`
}

// SubmitInput is a user's answer sheet.
type SubmitInput struct {
	Answers     map[string]string `json:"answers"`
	StressLevel string            `json:"stress_level"`
}

// Service manages questions and scores submissions.
type Service struct {
	store     Store
	trainings TrainingLookup
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates an assessment service.
func NewService(store Store, trainings TrainingLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, trainings: trainings, validate: validator.New(), logger: logger, now: time.Now}
}

func canManage(actor identity.Actor, t training.Training) bool {
	return actor.Is(identity.RoleHR) || (actor.Is(identity.RoleTrainer) && t.TrainerID == actor.ID)
}

func (s *Service) build(in QuestionInput) (Question, error) {
	phase, err := ParsePhase(string(in.Phase))
	if err != nil {
		return Question{}, err
	}
	in.CorrectAnswer = strings.ToUpper(strings.TrimSpace(in.CorrectAnswer))
	in.Text = strings.TrimSpace(in.Text)
	if err := s.validate.Struct(in); err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	marks := 1
	if in.Marks != nil {
		marks = *in.Marks
	}
	return Question{
		Phase:         phase,
		Text:          in.Text,
		OptionA:       in.OptionA,
		OptionB:       in.OptionB,
		OptionC:       in.OptionC,
		OptionD:       in.OptionD,
		CorrectAnswer: in.CorrectAnswer,
		Marks:         marks,
	}, nil
}

// AddQuestion adds a question to a training the actor runs.
func (s *Service) AddQuestion(ctx context.Context, actor identity.Actor, trainingID string, in QuestionInput) (Question, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return Question{}, err
	}
	if !canManage(actor, t) {
		return Question{}, ErrForbidden
	}
	q, err := s.build(in)
	if err != nil {
		return Question{}, err
	}
	q.TrainingID = t.ID
	if err := s.store.CreateQuestion(ctx, &q); err != nil {
		return Question{}, err
	}
	return q, nil
}

// UpdateQuestion rewrites a question.
func (s *Service) UpdateQuestion(ctx context.Context, actor identity.Actor, id string, in QuestionInput) (Question, error) {
	current, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	t, err := s.trainings.GetTraining(ctx, current.TrainingID)
	if err != nil {
		return Question{}, err
	}
	if !canManage(actor, t) {
		return Question{}, ErrForbidden
	}
	if in.Phase == "" {
		in.Phase = current.Phase
	}
	q, err := s.build(in)
	if err != nil {
		return Question{}, err
	}
	q.ID = current.ID
	q.TrainingID = current.TrainingID
	q.CreatedAt = current.CreatedAt
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

// DeleteQuestion removes a question.
func (s *Service) DeleteQuestion(ctx context.Context, actor identity.Actor, id string) error {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	t, err := s.trainings.GetTraining(ctx, q.TrainingID)
	if err != nil {
		return err
	}
	if !canManage(actor, t) {
		return ErrForbidden
	}
	return s.store.DeleteQuestion(ctx, id)
}

// ListQuestions returns the questions of a phase. Only the trainer and HR
// see correct answers.
func (s *Service) ListQuestions(ctx context.Context, actor identity.Actor, trainingID string, phase Phase) ([]Question, error) {
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return nil, err
	}
	if _, err := ParsePhase(string(phase)); err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, t.ID, phase)
	if err != nil {
		return nil, err
	}
	if canManage(actor, t) {
		return questions, nil
	}
	public := make([]Question, len(questions))
	for i, q := range questions {
		public[i] = q.Public()
	}
	return public, nil
}

// Submit scores and stores an employee's answers. The pre-assessment is
// taken before the training starts and the post-assessment once it ends.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, trainingID string, phase Phase, in SubmitInput) (Submission, error) {
	if !actor.Is(identity.RoleEmployee) {
		return Submission{}, ErrForbidden
	}
	if _, err := ParsePhase(string(phase)); err != nil {
		return Submission{}, err
	}
	t, err := s.trainings.GetTraining(ctx, trainingID)
	if err != nil {
		return Submission{}, err
	}
	want := training.PhaseOpen
	if phase == PhasePost {
		want = training.PhaseCompleted
	}
	if t.PhaseAt(s.now()) != want {
		return Submission{}, ErrNotAvailable
	}

	done, err := s.store.HasSubmission(ctx, t.ID, actor.ID, phase)
	if err != nil {
		return Submission{}, err
	}
	if done {
		return Submission{}, ErrAlreadySubmitted
	}
	questions, err := s.store.ListQuestions(ctx, t.ID, phase)
	if err != nil {
		return Submission{}, err
	}
	if len(questions) == 0 {
		return Submission{}, ErrNoQuestions
	}

	answers := in.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	sub := Submission{
		TrainingID: t.ID,
		UserID:     actor.ID,
		Phase:      phase,
		Answers:    answers,
		Score:      Score(questions, answers),
		Status:     StatusCompleted,
	}
	if phase == PhasePre {
		sub.StressLevel = strings.TrimSpace(in.StressLevel)
	}
	if err := s.store.CreateSubmission(ctx, &sub); err != nil {
		return Submission{}, err
	}
	s.logger.Info("assessment submitted",
		zap.String("training_id", t.ID),
		zap.String("user_id", actor.ID),
		zap.String("phase", string(phase)),
		zap.Float64("score", sub.Score),
	)
	return sub, nil
}

// MySubmissions lists the user's submissions.
func (s *Service) MySubmissions(ctx context.Context, userID string) ([]Submission, error) {
	return s.store.ListSubmissionsByUser(ctx, userID)
}
