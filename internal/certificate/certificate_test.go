package certificate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stafftracker/internal/identity"
	"stafftracker/internal/notify"
	"stafftracker/internal/training"
)

var today = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name    string
		cert    Certificate
		want    Kind
		wantDue bool
	}{
		{"eight days out", Certificate{ExpiryDate: day(8)}, "", false},
		{"seven days out", Certificate{ExpiryDate: day(7)}, KindSoon, true},
		{"tomorrow", Certificate{ExpiryDate: day(1)}, KindSoon, true},
		{"soon already sent", Certificate{ExpiryDate: day(3), ReminderSoonSent: true}, "", false},
		{"expires today", Certificate{ExpiryDate: day(0)}, KindExpired, true},
		{"expired last month", Certificate{ExpiryDate: day(-30), ReminderSoonSent: true}, KindExpired, true},
		{"expired already sent", Certificate{ExpiryDate: day(-1), ReminderExpiredSent: true}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, due := Decide(tc.cert, today)
			assert.Equal(t, tc.wantDue, due)
			assert.Equal(t, tc.want, kind)
		})
	}
}

type memStore struct {
	certs map[string]*Certificate
}

func newMemStore() *memStore {
	return &memStore{certs: map[string]*Certificate{}}
}

func (m *memStore) Create(_ context.Context, c *Certificate) error {
	c.ID = uuid.NewString()
	cp := *c
	m.certs[c.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (Certificate, error) {
	c, ok := m.certs[id]
	if !ok {
		return Certificate{}, ErrNotFound
	}
	return *c, nil
}

func (m *memStore) UpdateExpiry(_ context.Context, id string, expiry time.Time) error {
	c, ok := m.certs[id]
	if !ok {
		return ErrNotFound
	}
	if !c.ExpiryDate.Equal(expiry) {
		c.ReminderSoonSent = false
		c.ReminderExpiredSent = false
	}
	c.ExpiryDate = expiry
	return nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]Certificate, error) {
	var res []Certificate
	for _, c := range m.certs {
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		res = append(res, *c)
	}
	return res, nil
}

func (m *memStore) ListReminderCandidates(_ context.Context, _ time.Time) ([]Certificate, error) {
	return m.List(context.Background(), Filter{})
}

func (m *memStore) MarkReminded(_ context.Context, id string, kind Kind) error {
	c, ok := m.certs[id]
	if !ok {
		return ErrNotFound
	}
	if kind == KindSoon {
		c.ReminderSoonSent = true
	} else {
		c.ReminderExpiredSent = true
	}
	return nil
}

type outbox struct {
	sent []notify.Message
	err  error
}

func (o *outbox) Notify(_ context.Context, msg notify.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

type trainingMap map[string]training.Training

func (m trainingMap) GetTraining(_ context.Context, id string) (training.Training, error) {
	t, ok := m[id]
	if !ok {
		return training.Training{}, training.ErrNotFound
	}
	return t, nil
}

type userMap map[string]identity.User

func (m userMap) GetUser(_ context.Context, id string) (identity.User, error) {
	u, ok := m[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

var (
	hr      = identity.Actor{ID: "hr", Role: identity.RoleHR}
	trainer = identity.Actor{ID: "trainer", Role: identity.RoleTrainer}
)

func newFixture() (*Service, *Reminder, *memStore, *outbox) {
	st := newMemStore()
	box := &outbox{}
	svc := NewService(st,
		trainingMap{"t1": {ID: "t1", Title: "CPR", TrainerID: "trainer"}},
		userMap{
			"emp":    {ID: "emp", Username: "alice", FullName: "Alice Smith", Email: "alice@x.io"},
			"noaddr": {ID: "noaddr", Username: "bob"},
		},
		nil)
	rem := NewReminder(st, box, NewMemoryGate(), nil)
	rem.now = func() time.Time { return today }
	return svc, rem, st, box
}

func TestIssueValidation(t *testing.T) {
	svc, _, _, _ := newFixture()
	ctx := context.Background()

	_, err := svc.Issue(ctx, hr, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2024/06/01", ExpiryDate: "2025-06-01"})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = svc.Issue(ctx, hr, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2024-06-01", ExpiryDate: "2024-06-01"})
	assert.ErrorIs(t, err, ErrExpiryBeforeIssue)

	_, err = svc.Issue(ctx, identity.Actor{ID: "other", Role: identity.RoleTrainer}, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2024-06-01", ExpiryDate: "2025-06-01"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Issue(ctx, trainer, IssueInput{UserID: "ghost", TrainingID: "t1", IssueDate: "2024-06-01", ExpiryDate: "2025-06-01"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	c, err := svc.Issue(ctx, trainer, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2024-06-01", ExpiryDate: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, "CPR", c.TrainingTitle)

	_, err = svc.Get(ctx, identity.Actor{ID: "someone", Role: identity.RoleEmployee}, c.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	got, err := svc.Get(ctx, identity.Actor{ID: "emp", Role: identity.RoleEmployee}, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = svc.All(ctx, trainer, Filter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSoonReminderFiresOnceAndResetsOnExpiryChange(t *testing.T) {
	svc, rem, st, box := newFixture()
	ctx := context.Background()

	c, err := svc.Issue(ctx, hr, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2023-06-01", ExpiryDate: day(5).Format(DateLayout)})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, hr, IssueInput{UserID: "noaddr", TrainingID: "t1", IssueDate: "2023-06-01", ExpiryDate: day(5).Format(DateLayout)})
	require.NoError(t, err)

	report, err := rem.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, RunReport{Soon: 1}, report)
	require.Len(t, box.sent, 1)
	assert.Equal(t, "alice@x.io", box.sent[0].To)
	assert.Contains(t, box.sent[0].Body, "Alice Smith")
	assert.Contains(t, box.sent[0].Body, "in 5 day(s)")
	assert.True(t, st.certs[c.ID].ReminderSoonSent)

	report, err = rem.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, RunReport{}, report)
	assert.Len(t, box.sent, 1)

	_, err = svc.UpdateExpiry(ctx, hr, c.ID, day(3).Format(DateLayout))
	require.NoError(t, err)
	assert.False(t, st.certs[c.ID].ReminderSoonSent)

	report, err = rem.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Soon)
	assert.Len(t, box.sent, 2)
}

func TestExpiredReminderAndFailedSend(t *testing.T) {
	svc, rem, st, box := newFixture()
	ctx := context.Background()

	c, err := svc.Issue(ctx, hr, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2023-01-01", ExpiryDate: day(-2).Format(DateLayout)})
	require.NoError(t, err)

	box.err = errors.New("relay unavailable")
	report, err := rem.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, st.certs[c.ID].ReminderExpiredSent)

	box.err = nil
	report, err = rem.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.True(t, st.certs[c.ID].ReminderExpiredSent)
	assert.Equal(t, "Expired: Certificate Expired", box.sent[0].Subject)
}

func TestRunDailyIsGated(t *testing.T) {
	svc, rem, _, box := newFixture()
	ctx := context.Background()

	_, err := svc.Issue(ctx, hr, IssueInput{UserID: "emp", TrainingID: "t1", IssueDate: "2023-06-01", ExpiryDate: day(2).Format(DateLayout)})
	require.NoError(t, err)

	ran, report, err := rem.RunDaily(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, report.Soon)

	ran, _, err = rem.RunDaily(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Len(t, box.sent, 1)
	assert.Equal(t, "cert_reminder_2024-06-01", GateKey(today))
}

func TestMemoryGateExpires(t *testing.T) {
	g := NewMemoryGate()
	now := today
	g.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = g.Acquire(ctx, "k", time.Hour)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	ok, _ = g.Acquire(ctx, "k", time.Hour)
	assert.True(t, ok)
}
