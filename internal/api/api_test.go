package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stafftracker/internal/attendance"
	"stafftracker/internal/auth"
	"stafftracker/internal/certificate"
	"stafftracker/internal/httpmiddleware"
	"stafftracker/internal/identity"
	"stafftracker/internal/report"
	"stafftracker/internal/training"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAttendance struct {
	AttendanceService
	redeemed []string
	err      error
}

func (f *fakeAttendance) RedeemToken(_ context.Context, token, username, _ string) (attendance.CheckIn, error) {
	if f.err != nil {
		return attendance.CheckIn{}, f.err
	}
	f.redeemed = append(f.redeemed, token)
	uid := "emp-1"
	return attendance.CheckIn{
		Record:    attendance.Record{ID: token, TrainingID: "t1", UserID: &uid, Status: attendance.StatusPresent},
		Username:  username,
		CPDPoints: 3,
	}, nil
}

func (f *fakeAttendance) Sweep(_ context.Context, trainingID string, force bool) (int, error) {
	if !force {
		return 0, attendance.ErrTrainingNotEnded
	}
	return 2, nil
}

type fakeReports struct {
	ReportService
}

func (fakeReports) CPD(_ context.Context, actor identity.Actor, f report.CPDFilter) (report.CPDReport, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return report.CPDReport{}, report.ErrInvalidFilter
	}
	return report.CPDReport{
		Rows:        []report.CPDRow{{Employee: "Alice", Department: "Nursing", Training: "CPR", Points: 3, Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}},
		TotalPoints: 3,
	}, nil
}

type fakeIdentity struct {
	IdentityService
}

func (fakeIdentity) GetUser(_ context.Context, id string) (identity.User, error) {
	if id == "ghost" {
		return identity.User{}, identity.ErrNotFound
	}
	return identity.User{ID: id, Username: "alice", Role: identity.RoleEmployee}, nil
}

type countingReminders struct {
	calls int
}

func (r *countingReminders) RunDaily(context.Context) (bool, certificate.RunReport, error) {
	r.calls++
	return r.calls == 1, certificate.RunReport{Soon: 1}, nil
}

type testEnv struct {
	router     http.Handler
	signer     *auth.Signer
	attendance *fakeAttendance
	reminders  *countingReminders
}

func newEnv(limit int) *testEnv {
	signer := auth.NewSigner("stafftracker-test", "api-test-signing-key", time.Minute, time.Hour)
	env := &testEnv{signer: signer, attendance: &fakeAttendance{}, reminders: &countingReminders{}}
	srv := New(Deps{
		Identity:     fakeIdentity{},
		Attendance:   env.attendance,
		Reports:      fakeReports{},
		Reminders:    env.reminders,
		Signer:       signer,
		CheckInLimit: httpmiddleware.NewTokenBucket(limit, 1),
		Health: map[string]HealthCheck{
			"db":    func(context.Context) error { return nil },
			"redis": func(context.Context) error { return errors.New("redis: connection refused") },
		},
	})
	env.router = srv.Router()
	return env
}

func (e *testEnv) token(t *testing.T, id string, role identity.Role) string {
	t.Helper()
	sess, err := e.signer.IssuePair(identity.User{ID: id, Role: role})
	require.NoError(t, err)
	return sess.AccessToken
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: title required", training.ErrValidation), http.StatusBadRequest},
		{identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{report.ErrForbidden, http.StatusForbidden},
		{certificate.ErrNotFound, http.StatusNotFound},
		{attendance.ErrTokenUsed, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestAuthRequired(t *testing.T) {
	env := newEnv(10)
	w := env.do(http.MethodGet, "/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, env.reminders.calls)

	w = env.do(http.MethodGet, "/v1/me", env.token(t, "emp-1", identity.RoleEmployee), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	w = env.do(http.MethodGet, "/v1/me", env.token(t, "ghost", identity.RoleEmployee), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"user not found"}`, w.Body.String())

	assert.Equal(t, 2, env.reminders.calls)
}

func TestRedeemQR(t *testing.T) {
	env := newEnv(1)
	body := `{"attendance_id":"att-1","username":"alice","password":"secret"}`

	w := env.do(http.MethodPost, "/v1/checkin/qr", "", body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Message    string            `json:"message"`
		Attendance attendance.Record `json:"attendance"`
		CPDPoints  int               `json:"cpd_points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Attendance marked successfully", resp.Message)
	assert.Equal(t, attendance.StatusPresent, resp.Attendance.Status)
	assert.Equal(t, 3, resp.CPDPoints)
	assert.Equal(t, []string{"att-1"}, env.attendance.redeemed)

	w = env.do(http.MethodPost, "/v1/checkin/qr", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	env.attendance.err = attendance.ErrTokenUsed
	w = env.do(http.MethodPost, "/v1/checkin/qr", "", `{"attendance_id":"att-1","username":"bob","password":"x"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already been used")

	w = env.do(http.MethodPost, "/v1/checkin/qr", "", `{"username":"carol"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSweepIsHROnly(t *testing.T) {
	env := newEnv(10)
	w := env.do(http.MethodPost, "/v1/trainings/t1/sweep", env.token(t, "tr", identity.RoleTrainer), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	hr := env.token(t, "hr", identity.RoleHR)
	w = env.do(http.MethodPost, "/v1/trainings/t1/sweep", hr, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/v1/trainings/t1/sweep?force=true", hr, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"training_id":"t1","marked_absent":2}`, w.Body.String())
}

func TestReports(t *testing.T) {
	env := newEnv(10)
	w := env.do(http.MethodGet, "/v1/reports/cpd", env.token(t, "emp-1", identity.RoleEmployee), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	hr := env.token(t, "hr", identity.RoleHR)
	w = env.do(http.MethodGet, "/v1/reports/cpd?from=2024-05-01&to=2024-04-01", hr, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodGet, "/v1/reports/cpd?from=May", hr, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/v1/reports/cpd/export?format=csv", hr, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cpd_report.csv")
	assert.Contains(t, w.Body.String(), "Alice,Nursing,CPR,3,2024-05-02")

	w = env.do(http.MethodGet, "/v1/reports/cpd/export?format=pdf", hr, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	env := newEnv(10)
	w := env.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"db":"ok","redis":"redis: connection refused"}}`, w.Body.String())
}
