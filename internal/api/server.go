package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stafftracker/internal/assessment"
	"stafftracker/internal/attendance"
	"stafftracker/internal/auth"
	"stafftracker/internal/certificate"
	"stafftracker/internal/cpd"
	"stafftracker/internal/evaluation"
	"stafftracker/internal/httpmiddleware"
	"stafftracker/internal/identity"
	"stafftracker/internal/report"
	"stafftracker/internal/training"
)

// IdentityService covers accounts, sessions and departments.
type IdentityService interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.User, error)
	Login(ctx context.Context, username, password string) (identity.Session, error)
	Refresh(ctx context.Context, refreshToken string) (identity.Session, error)
	GetUser(ctx context.Context, id string) (identity.User, error)
	ListUsers(ctx context.Context, f identity.UserFilter) ([]identity.User, error)
	ListPending(ctx context.Context) ([]identity.User, error)
	Approve(ctx context.Context, userID string) (identity.User, error)
	CreateDepartment(ctx context.Context, name string) (identity.Department, error)
	ListDepartments(ctx context.Context) ([]identity.Department, error)
	AssignHOD(ctx context.Context, departmentID, userID string) (identity.Department, error)
}

// TrainingService covers trainings and registrations.
type TrainingService interface {
	Create(ctx context.Context, actor identity.Actor, in training.Input) (training.Training, error)
	Update(ctx context.Context, actor identity.Actor, id string, in training.Input) (training.Training, error)
	Delete(ctx context.Context, actor identity.Actor, id string) error
	Get(ctx context.Context, id string) (training.Training, error)
	List(ctx context.Context, f training.Filter) ([]training.Training, error)
	Register(ctx context.Context, actor identity.Actor, trainingID string) (training.Registration, error)
	Decide(ctx context.Context, actor identity.Actor, registrationID string, status training.Status) (training.Registration, error)
	SetCompletion(ctx context.Context, actor identity.Actor, registrationID string, completed bool) (training.Registration, error)
	ListRegistrations(ctx context.Context, actor identity.Actor, f training.RegistrationFilter) ([]training.RegistrationView, error)
}

// AttendanceService covers QR tokens, check-in and the absence sweep.
type AttendanceService interface {
	GenerateCheckinToken(ctx context.Context, actor identity.Actor, trainingID string) (attendance.Token, error)
	RedeemToken(ctx context.Context, token, username, password string) (attendance.CheckIn, error)
	ManualCheckIn(ctx context.Context, actor identity.Actor, trainingID, userID string) (attendance.CheckIn, error)
	TrainingAttendance(ctx context.Context, actor identity.Actor, trainingID string) (attendance.Sheet, error)
	Sweep(ctx context.Context, trainingID string, force bool) (int, error)
}

// AssessmentService covers questions and submissions.
type AssessmentService interface {
	AddQuestion(ctx context.Context, actor identity.Actor, trainingID string, in assessment.QuestionInput) (assessment.Question, error)
	UpdateQuestion(ctx context.Context, actor identity.Actor, id string, in assessment.QuestionInput) (assessment.Question, error)
	DeleteQuestion(ctx context.Context, actor identity.Actor, id string) error
	ListQuestions(ctx context.Context, actor identity.Actor, trainingID string, phase assessment.Phase) ([]assessment.Question, error)
	Submit(ctx context.Context, actor identity.Actor, trainingID string, phase assessment.Phase, in assessment.SubmitInput) (assessment.Submission, error)
	MySubmissions(ctx context.Context, userID string) ([]assessment.Submission, error)
}

// CertificateService covers certificate issue and listing.
type CertificateService interface {
	Issue(ctx context.Context, actor identity.Actor, in certificate.IssueInput) (certificate.Certificate, error)
	UpdateExpiry(ctx context.Context, actor identity.Actor, id, expiryDate string) (certificate.Certificate, error)
	Mine(ctx context.Context, userID string) ([]certificate.Certificate, error)
	All(ctx context.Context, actor identity.Actor, f certificate.Filter) ([]certificate.Certificate, error)
	Get(ctx context.Context, actor identity.Actor, id string) (certificate.Certificate, error)
}

// CPDLedger reads a user's CPD summary.
type CPDLedger interface {
	Summarize(ctx context.Context, userID string) (cpd.Summary, error)
}

// ReportService builds role-scoped reports.
type ReportService interface {
	CPD(ctx context.Context, actor identity.Actor, f report.CPDFilter) (report.CPDReport, error)
	Attendance(ctx context.Context, actor identity.Actor, f report.AttendanceFilter) ([]report.AttendanceRow, error)
	Expiring(ctx context.Context, actor identity.Actor, departmentID string) ([]report.ExpiringRow, error)
}

// EvaluationService covers training feedback.
type EvaluationService interface {
	Submit(ctx context.Context, actor identity.Actor, trainingID string, e evaluation.Evaluation) (evaluation.Evaluation, error)
	List(ctx context.Context, actor identity.Actor, trainingID string) ([]evaluation.Evaluation, error)
	Summary(ctx context.Context, actor identity.Actor, trainingID string) (evaluation.Summary, error)
}

// Reminders runs the certificate reminder pass at most once a day.
type Reminders interface {
	RunDaily(ctx context.Context) (bool, certificate.RunReport, error)
}

// HealthCheck returns nil when a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps wires the router.
type Deps struct {
	Identity     IdentityService
	Trainings    TrainingService
	Attendance   AttendanceService
	Assessments  AssessmentService
	Certificates CertificateService
	CPD          CPDLedger
	Reports      ReportService
	Evaluations  EvaluationService
	Reminders    Reminders
	Signer       *auth.Signer
	CheckInLimit *httpmiddleware.TokenBucket
	Health       map[string]HealthCheck
	Logger       *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	Deps
}

// New creates a server.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Server{Deps: d}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(s.Logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", s.login)
	v1.POST("/auth/refresh", s.refresh)
	v1.POST("/auth/register", s.register)

	checkin := []gin.HandlerFunc{s.redeemToken}
	if s.CheckInLimit != nil {
		checkin = append([]gin.HandlerFunc{s.CheckInLimit.Middleware(httpmiddleware.ByIPAndUsername("username"))}, checkin...)
	}
	v1.POST("/checkin/qr", checkin...)

	authed := v1.Group("", auth.UserAuth(s.Signer), s.dailyReminders())
	hr := auth.RequireRole(identity.RoleHR)

	authed.GET("/me", s.me)
	authed.GET("/users", hr, s.listUsers)
	authed.GET("/users/pending", hr, s.listPending)
	authed.POST("/users/:id/approve", hr, s.approveUser)
	authed.POST("/departments", hr, s.createDepartment)
	authed.GET("/departments", s.listDepartments)
	authed.PUT("/departments/:id/hod", hr, s.assignHOD)

	authed.POST("/trainings", auth.RequireRole(identity.RoleHR, identity.RoleTrainer), s.createTraining)
	authed.GET("/trainings", s.listTrainings)
	authed.GET("/trainings/:id", s.getTraining)
	authed.PUT("/trainings/:id", s.updateTraining)
	authed.DELETE("/trainings/:id", s.deleteTraining)
	authed.POST("/trainings/:id/register", s.registerForTraining)
	authed.GET("/registrations", s.listRegistrations)
	authed.POST("/registrations/:id/decision", auth.RequireRole(identity.RoleHR, identity.RoleHOD), s.decideRegistration)
	authed.POST("/registrations/:id/completion", s.setCompletion)

	authed.POST("/trainings/:id/qr", s.generateToken)
	authed.POST("/trainings/:id/checkin", s.manualCheckIn)
	authed.GET("/trainings/:id/attendance", s.trainingAttendance)
	authed.POST("/trainings/:id/sweep", hr, s.sweep)

	authed.GET("/trainings/:id/questions", s.listQuestions)
	authed.POST("/trainings/:id/questions", s.addQuestion)
	authed.PUT("/questions/:id", s.updateQuestion)
	authed.DELETE("/questions/:id", s.deleteQuestion)
	authed.POST("/trainings/:id/assessments/:phase", s.submitAssessment)
	authed.GET("/assessments/mine", s.mySubmissions)

	authed.POST("/trainings/:id/evaluations", s.submitEvaluation)
	authed.GET("/trainings/:id/evaluations", s.listEvaluations)
	authed.GET("/trainings/:id/evaluations/summary", s.evaluationSummary)

	authed.POST("/certificates", s.issueCertificate)
	authed.PUT("/certificates/:id/expiry", s.updateExpiry)
	authed.GET("/certificates/mine", s.myCertificates)
	authed.GET("/certificates", s.allCertificates)
	authed.GET("/certificates/:id", s.getCertificate)

	authed.GET("/cpd/mine", s.myCPD)

	reports := authed.Group("/reports", auth.RequireRole(identity.RoleHR, identity.RoleHOD))
	reports.GET("/cpd", s.cpdReport)
	reports.GET("/cpd/export", s.exportCPD)
	reports.GET("/attendance", s.attendanceReport)
	reports.GET("/attendance/export", s.exportAttendance)
	reports.GET("/certificates/expiring", s.expiringReport)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	checks := gin.H{}
	status := http.StatusOK
	for name, check := range s.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}

// dailyReminders piggybacks the certificate reminder pass on the first
// authenticated request of each day. Failures are logged, never surfaced.
func (s *Server) dailyReminders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Reminders != nil {
			ran, rep, err := s.Reminders.RunDaily(c.Request.Context())
			switch {
			case err != nil:
				s.Logger.Warn("certificate reminders failed", zap.Error(err))
			case ran:
				s.Logger.Info("certificate reminders sent",
					zap.Int("soon", rep.Soon), zap.Int("expired", rep.Expired), zap.Int("failed", rep.Failed))
			}
		}
		c.Next()
	}
}
