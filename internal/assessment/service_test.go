package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stafftracker/internal/identity"
	"stafftracker/internal/training"
)

func TestScore(t *testing.T) {
	questions := []Question{
		{ID: "q1", CorrectAnswer: "A", Marks: 1},
		{ID: "q2", CorrectAnswer: "B", Marks: 1},
		{ID: "q3", CorrectAnswer: "C", Marks: 1},
	}

	cases := []struct {
		name    string
		answers map[string]string
		want    float64
	}{
		{"all correct", map[string]string{"q1": "A", "q2": "B", "q3": "C"}, 100},
		{"none correct", map[string]string{"q1": "D", "q2": "D", "q3": "D"}, 0},
		{"two of three", map[string]string{"q1": "A", "q2": "B", "q3": "D"}, 66.67},
		{"case and space insensitive", map[string]string{"q1": " a", "q2": "b ", "q3": "c"}, 100},
		{"no answers", map[string]string{}, 0},
		{"unknown question ignored", map[string]string{"zz": "A"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(questions, tc.answers))
		})
	}

	weighted := []Question{{ID: "q1", CorrectAnswer: "A", Marks: 3}, {ID: "q2", CorrectAnswer: "B", Marks: 1}}
	assert.Equal(t, 75.0, Score(weighted, map[string]string{"q1": "A"}))
	assert.Equal(t, 0.0, Score([]Question{{ID: "q1", CorrectAnswer: "A"}}, map[string]string{"q1": "A"}))
}

type memStore struct {
	questions map[string]Question
	subs      []Submission
}

func (m *memStore) CreateQuestion(_ context.Context, q *Question) error {
	q.ID = uuid.NewString()
	q.CreatedAt = time.Now()
	m.questions[q.ID] = *q
	return nil
}

func (m *memStore) GetQuestion(_ context.Context, id string) (Question, error) {
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	return q, nil
}

func (m *memStore) UpdateQuestion(_ context.Context, q Question) error {
	m.questions[q.ID] = q
	return nil
}

func (m *memStore) DeleteQuestion(_ context.Context, id string) error {
	delete(m.questions, id)
	return nil
}

func (m *memStore) ListQuestions(_ context.Context, trainingID string, phase Phase) ([]Question, error) {
	var res []Question
	for _, q := range m.questions {
		if q.TrainingID == trainingID && q.Phase == phase {
			res = append(res, q)
		}
	}
	return res, nil
}

func (m *memStore) HasSubmission(_ context.Context, trainingID, userID string, phase Phase) (bool, error) {
	for _, s := range m.subs {
		if s.TrainingID == trainingID && s.UserID == userID && s.Phase == phase {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateSubmission(_ context.Context, s *Submission) error {
	s.ID = uuid.NewString()
	m.subs = append(m.subs, *s)
	return nil
}

func (m *memStore) ListSubmissionsByUser(_ context.Context, userID string) ([]Submission, error) {
	var res []Submission
	for _, s := range m.subs {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	return res, nil
}

type trainingMap map[string]training.Training

func (m trainingMap) GetTraining(_ context.Context, id string) (training.Training, error) {
	t, ok := m[id]
	if !ok {
		return training.Training{}, training.ErrNotFound
	}
	return t, nil
}

var (
	trainer  = identity.Actor{ID: "trainer", Role: identity.RoleTrainer}
	employee = identity.Actor{ID: "emp", Role: identity.RoleEmployee}
)

func newTestService(now time.Time) (*Service, *memStore) {
	st := &memStore{questions: map[string]Question{}}
	trainings := trainingMap{
		"t1": {ID: "t1", TrainerID: "trainer", StartsAt: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), DurationHours: 2},
	}
	svc := NewService(st, trainings, nil)
	svc.now = func() time.Time { return now }
	return svc, st
}

func marks(n int) *int { return &n }

func TestQuestionManagement(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.AddQuestion(ctx, employee, "t1", QuestionInput{Phase: PhasePre, Text: "?", OptionA: "a", OptionB: "b", CorrectAnswer: "A"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.AddQuestion(ctx, trainer, "t1", QuestionInput{Phase: PhasePre, Text: "?", OptionA: "a", OptionB: "b", CorrectAnswer: "E"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddQuestion(ctx, trainer, "t1", QuestionInput{Phase: "mid", Text: "?", OptionA: "a", OptionB: "b", CorrectAnswer: "A"})
	assert.ErrorIs(t, err, ErrInvalidPhase)

	q, err := svc.AddQuestion(ctx, trainer, "t1", QuestionInput{Phase: PhasePre, Text: "Exit?", OptionA: "a", OptionB: "b", CorrectAnswer: "b"})
	require.NoError(t, err)
	assert.Equal(t, "B", q.CorrectAnswer)
	assert.Equal(t, 1, q.Marks)

	q, err = svc.UpdateQuestion(ctx, trainer, q.ID, QuestionInput{Text: "Exit now?", OptionA: "a", OptionB: "b", CorrectAnswer: "A", Marks: marks(2)})
	require.NoError(t, err)
	assert.Equal(t, PhasePre, q.Phase)
	assert.Equal(t, 2, q.Marks)

	listed, err := svc.ListQuestions(ctx, employee, "t1", PhasePre)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].CorrectAnswer)

	listed, err = svc.ListQuestions(ctx, trainer, "t1", PhasePre)
	require.NoError(t, err)
	assert.Equal(t, "A", listed[0].CorrectAnswer)

	require.NoError(t, svc.DeleteQuestion(ctx, trainer, q.ID))
	_, err = svc.UpdateQuestion(ctx, trainer, q.ID, QuestionInput{Text: "x", OptionA: "a", OptionB: "b", CorrectAnswer: "A"})
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestSubmitPreAssessment(t *testing.T) {
	svc, st := newTestService(time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.Submit(ctx, employee, "t1", PhasePre, SubmitInput{})
	assert.ErrorIs(t, err, ErrNoQuestions)

	var ids []string
	for _, answer := range []string{"A", "B", "C"} {
		q, err := svc.AddQuestion(ctx, trainer, "t1", QuestionInput{Phase: PhasePre, Text: "?", OptionA: "a", OptionB: "b", CorrectAnswer: answer})
		require.NoError(t, err)
		ids = append(ids, q.ID)
	}

	sub, err := svc.Submit(ctx, employee, "t1", PhasePre, SubmitInput{
		Answers:     map[string]string{ids[0]: "a", ids[1]: "B", ids[2]: "D"},
		StressLevel: "Low",
	})
	require.NoError(t, err)
	assert.Equal(t, 66.67, sub.Score)
	assert.Equal(t, "Low", sub.StressLevel)
	assert.Equal(t, StatusCompleted, sub.Status)

	_, err = svc.Submit(ctx, employee, "t1", PhasePre, SubmitInput{Answers: map[string]string{ids[0]: "A"}})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, st.subs, 1)

	_, err = svc.Submit(ctx, employee, "t1", PhasePost, SubmitInput{})
	assert.ErrorIs(t, err, ErrNotAvailable)

	_, err = svc.Submit(ctx, trainer, "t1", PhasePre, SubmitInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := svc.MySubmissions(ctx, "emp")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestSubmitPostAssessmentAfterTraining(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	q, err := svc.AddQuestion(ctx, trainer, "t1", QuestionInput{Phase: PhasePost, Text: "?", OptionA: "a", OptionB: "b", CorrectAnswer: "A"})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, employee, "t1", PhasePre, SubmitInput{})
	assert.ErrorIs(t, err, ErrNotAvailable)

	sub, err := svc.Submit(ctx, employee, "t1", PhasePost, SubmitInput{Answers: map[string]string{q.ID: "A"}, StressLevel: "High"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, sub.Score)
	assert.Empty(t, sub.StressLevel)
}
