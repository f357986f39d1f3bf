package attendance

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stafftracker/internal/cpd"
	"stafftracker/internal/identity"
	"stafftracker/internal/training"
)

// memStore mimics the conditional update and unique constraint of the
// Postgres repository.
type memStore struct {
	mu      sync.Mutex
	records map[string]Record
	regs    map[string]training.Registration
	credits []cpd.Record
}

func newMemStore() *memStore {
	return &memStore{records: map[string]Record{}, regs: map[string]training.Registration{}}
}

func (m *memStore) CreatePlaceholder(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.NewString()
	rec.Status = StatusAbsent
	m.records[rec.ID] = *rec
	return nil
}

func (m *memStore) GetRecord(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrTokenInvalid
	}
	return rec, nil
}

func (m *memStore) HasPresent(_ context.Context, trainingID, userID, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.records {
		if id != excludeID && rec.TrainingID == trainingID && rec.UserID != nil && *rec.UserID == userID && rec.Status == StatusPresent {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) userRow(trainingID, userID string) (string, bool) {
	for id, rec := range m.records {
		if rec.TrainingID == trainingID && rec.UserID != nil && *rec.UserID == userID {
			return id, true
		}
	}
	return "", false
}

func (m *memStore) Claim(_ context.Context, tokenID, userID string, at time.Time, credit *cpd.Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tokenID]
	if !ok || rec.Redeemed() {
		return Record{}, ErrTokenUsed
	}
	if id, ok := m.userRow(rec.TrainingID, userID); ok {
		if m.records[id].Status == StatusPresent {
			return Record{}, ErrAlreadyCheckedIn
		}
		delete(m.records, id)
	}
	rec.UserID = &userID
	rec.Status = StatusPresent
	rec.CheckInTime = &at
	m.records[tokenID] = rec
	m.credits = append(m.credits, *credit)
	return rec, nil
}

func (m *memStore) MarkPresent(_ context.Context, trainingID, userID string, at time.Time, credit *cpd.Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.userRow(trainingID, userID); ok {
		if m.records[id].Status == StatusPresent {
			return Record{}, ErrAlreadyCheckedIn
		}
		delete(m.records, id)
	}
	rec := Record{ID: uuid.NewString(), TrainingID: trainingID, UserID: &userID, Status: StatusPresent, CheckInTime: &at, Date: at}
	m.records[rec.ID] = rec
	m.credits = append(m.credits, *credit)
	return rec, nil
}

func (m *memStore) SweepAbsent(_ context.Context, trainingID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := 0
	for key, reg := range m.regs {
		if reg.TrainingID != trainingID || reg.Status != training.StatusApproved {
			continue
		}
		if _, ok := m.userRow(trainingID, reg.EmployeeID); ok {
			continue
		}
		uid := reg.EmployeeID
		id := uuid.NewString()
		m.records[id] = Record{ID: id, TrainingID: trainingID, UserID: &uid, Status: StatusAbsent, Date: day}
		reg.Completion = training.Completed
		m.regs[key] = reg
		marked++
	}
	return marked, nil
}

func (m *memStore) ListByTraining(_ context.Context, trainingID string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []Row
	for _, rec := range m.records {
		if rec.TrainingID == trainingID && rec.Redeemed() {
			rows = append(rows, Row{Record: rec, Username: *rec.UserID})
		}
	}
	return rows, nil
}

func (m *memStore) PurgeExpiredTokens(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.records {
		if !rec.Redeemed() && rec.TokenExpiresAt != nil && rec.TokenExpiresAt.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// memTrainings serves trainings and reads registrations out of the shared store.
type memTrainings struct {
	store     *memStore
	trainings map[string]training.Training
}

func (m *memTrainings) GetTraining(_ context.Context, id string) (training.Training, error) {
	t, ok := m.trainings[id]
	if !ok {
		return training.Training{}, training.ErrNotFound
	}
	return t, nil
}

func (m *memTrainings) FindRegistration(_ context.Context, trainingID, employeeID string) (training.Registration, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, r := range m.store.regs {
		if r.TrainingID == trainingID && r.EmployeeID == employeeID {
			return r, nil
		}
	}
	return training.Registration{}, training.ErrRegistrationNotFound
}

func (m *memTrainings) ListTrainings(_ context.Context, f training.Filter) ([]training.Training, error) {
	var res []training.Training
	for _, t := range m.trainings {
		if f.EndedBefore != nil && t.EndsAt().After(*f.EndedBefore) {
			continue
		}
		res = append(res, t)
	}
	return res, nil
}

type memUsers map[string]identity.User

func (m memUsers) Authenticate(_ context.Context, username, password string) (identity.User, error) {
	for _, u := range m {
		if u.Username == username && password == "secret" {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrInvalidCredentials
}

func (m memUsers) GetUser(_ context.Context, id string) (identity.User, error) {
	u, ok := m[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

type fixture struct {
	svc      *Service
	store    *memStore
	clock    *time.Time
	training training.Training
	trainer  identity.Actor
	hr       identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dept := "dept"
	users := memUsers{
		"emp":     {ID: "emp", Username: "alice", Role: identity.RoleEmployee, IsApproved: true, DepartmentID: &dept},
		"emp2":    {ID: "emp2", Username: "bob", Role: identity.RoleEmployee, IsApproved: true, DepartmentID: &dept},
		"pending": {ID: "pending", Username: "carol", Role: identity.RoleEmployee, IsApproved: true, DepartmentID: &dept},
		"newbie":  {ID: "newbie", Username: "dave", Role: identity.RoleEmployee, DepartmentID: &dept},
		"trainer": {ID: "trainer", Username: "tom", Role: identity.RoleTrainer, IsApproved: true, DepartmentID: &dept},
		"hr":      {ID: "hr", Username: "hr", Role: identity.RoleHR, IsApproved: true},
	}
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	tr := training.Training{
		ID:            "training-1",
		Title:         "First aid",
		StartsAt:      time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
		DurationHours: 2,
		TrainerID:     "trainer",
		CPDPoints:     4,
	}
	st := newMemStore()
	st.regs["r1"] = training.Registration{ID: "r1", TrainingID: tr.ID, EmployeeID: "emp", Status: training.StatusApproved, Completion: training.NotCompleted}
	st.regs["r2"] = training.Registration{ID: "r2", TrainingID: tr.ID, EmployeeID: "emp2", Status: training.StatusApproved, Completion: training.NotCompleted}
	st.regs["r3"] = training.Registration{ID: "r3", TrainingID: tr.ID, EmployeeID: "pending", Status: training.StatusPending, Completion: training.NotCompleted}
	lookup := &memTrainings{store: st, trainings: map[string]training.Training{tr.ID: tr}}

	svc := NewService(st, lookup, users, users, time.Hour, nil)
	f := &fixture{svc: svc, store: st, clock: &now, training: tr, trainer: users["trainer"].Actor(), hr: users["hr"].Actor()}
	svc.now = func() time.Time { return *f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestGenerateCheckinToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateCheckinToken(ctx, identity.Actor{ID: "emp", Role: identity.RoleEmployee}, f.training.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	tok, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok.Image, "data:image/png;base64,"))
	assert.Equal(t, f.clock.Add(time.Hour), tok.ExpiresAt)

	var payload QRPayload
	require.NoError(t, json.Unmarshal([]byte(tok.Payload), &payload))
	assert.Equal(t, "attendance_checkin", payload.Type)
	assert.Equal(t, tok.AttendanceID, payload.AttendanceID)
	assert.Equal(t, "First aid", payload.TrainingTitle)
	assert.Equal(t, payload.Timestamp+3600, payload.Expires)

	rec := f.store.records[tok.AttendanceID]
	assert.False(t, rec.Redeemed())
	assert.Equal(t, StatusAbsent, rec.Status)
}

func TestRedeemTokenEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)

	res, err := f.svc.RedeemToken(ctx, tok.AttendanceID, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, res.Record.Status)
	assert.Equal(t, 4, res.CPDPoints)
	require.Len(t, f.store.credits, 1)
	assert.Equal(t, cpd.Record{UserID: "emp", TrainingID: f.training.ID, Points: 4, EarnedDate: *f.clock}, f.store.credits[0])

	_, err = f.svc.RedeemToken(ctx, tok.AttendanceID, "bob", "secret")
	assert.ErrorIs(t, err, ErrTokenUsed)
	assert.Len(t, f.store.credits, 1)

	second, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)
	_, err = f.svc.RedeemToken(ctx, second.AttendanceID, "alice", "secret")
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestRedeemTokenRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)

	cases := []struct {
		name     string
		token    string
		username string
		password string
		want     error
	}{
		{"missing fields", tok.AttendanceID, "", "secret", ErrValidation},
		{"unknown token", uuid.NewString(), "alice", "secret", ErrTokenInvalid},
		{"bad password", tok.AttendanceID, "alice", "nope", ErrInvalidCredentials},
		{"not an employee", tok.AttendanceID, "tom", "secret", ErrNotEmployee},
		{"unapproved account", tok.AttendanceID, "dave", "secret", ErrNotApproved},
		{"pending registration", tok.AttendanceID, "carol", "secret", ErrRegistrationNotApproved},
		{"hr account", tok.AttendanceID, "hr", "secret", ErrNotEmployee},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RedeemToken(ctx, tc.token, tc.username, tc.password)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.store.credits)

	f.advance(61 * time.Minute)
	_, err = f.svc.RedeemToken(ctx, tok.AttendanceID, "alice", "secret")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRedeemTokenUnregistered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	delete(f.store.regs, "r2")

	tok, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)
	_, err = f.svc.RedeemToken(ctx, tok.AttendanceID, "bob", "secret")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = f.svc.RedeemToken(ctx, tok.AttendanceID, name, "secret")
		}(i, name)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrTokenUsed)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.store.credits, 1)
}

func TestSweepMarksAbsenteesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Sweep(ctx, f.training.ID, false)
	assert.ErrorIs(t, err, ErrTrainingNotEnded)

	tok, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)
	_, err = f.svc.RedeemToken(ctx, tok.AttendanceID, "alice", "secret")
	require.NoError(t, err)

	f.advance(2 * time.Hour)
	marked, err := f.svc.Sweep(ctx, f.training.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, training.Completed, f.store.regs["r2"].Completion)

	marked, err = f.svc.Sweep(ctx, f.training.ID, false)
	require.NoError(t, err)
	assert.Zero(t, marked)

	sheet, err := f.svc.TrainingAttendance(ctx, f.hr, f.training.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sheet.Total)
	assert.Equal(t, 1, sheet.Present)
	assert.Equal(t, 1, sheet.Absent)
}

func TestLateCheckInReplacesAbsentRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Sweep(ctx, f.training.ID, true)
	require.NoError(t, err)

	res, err := f.svc.ManualCheckIn(ctx, f.trainer, f.training.ID, "emp2")
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, res.Record.Status)

	_, err = f.svc.ManualCheckIn(ctx, f.trainer, f.training.ID, "emp2")
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	_, err = f.svc.ManualCheckIn(ctx, identity.Actor{ID: "other", Role: identity.RoleTrainer}, f.training.ID, "emp")
	assert.ErrorIs(t, err, ErrForbidden)

	sheet, err := f.svc.TrainingAttendance(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sheet.Total)
	assert.Equal(t, 1, sheet.Present)
}

func TestSweepAllSkipsRunningTrainings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.svc.SweepAll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, results)

	f.advance(3 * time.Hour)
	results, err = f.svc.SweepAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Marked)
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateCheckinToken(ctx, f.trainer, f.training.ID)
	require.NoError(t, err)

	f.advance(2 * time.Hour)
	n, err := f.svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(24 * time.Hour)
	n, err = f.svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
