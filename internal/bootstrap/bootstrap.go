package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"stafftracker/internal/api"
	"stafftracker/internal/assessment"
	"stafftracker/internal/attendance"
	"stafftracker/internal/auth"
	"stafftracker/internal/certificate"
	"stafftracker/internal/config"
	"stafftracker/internal/cpd"
	"stafftracker/internal/evaluation"
	"stafftracker/internal/httpmiddleware"
	"stafftracker/internal/identity"
	"stafftracker/internal/notify"
	"stafftracker/internal/queue"
	"stafftracker/internal/report"
	"stafftracker/internal/store"
	"stafftracker/internal/training"
)

// Infra holds the external connections shared by every binary.
type Infra struct {
	DB    *store.DB
	Redis *store.Redis
	Queue queue.Queue
}

// Open connects to Postgres and Redis and applies migrations when enabled.
func Open(cfg config.App, logger *zap.Logger) (*Infra, error) {
	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.RunMigrations {
		if err := store.Migrate(db.Client, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	infra := &Infra{DB: db, Redis: store.NewRedis(store.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})}
	if cfg.QueueBackend == "memory" {
		infra.Queue = queue.NewInMemory(64)
	} else {
		infra.Queue = queue.NewRedisQueue(infra.Redis.Client, queue.DefaultKey)
	}
	return infra, nil
}

// Close releases the connections.
func (i *Infra) Close() {
	_ = i.Redis.Close()
	_ = i.DB.Close()
}

// Services is the wired domain layer.
type Services struct {
	Signer       *auth.Signer
	Identity     *identity.Service
	Trainings    *training.Service
	Attendance   *attendance.Service
	Assessments  *assessment.Service
	Certificates *certificate.Service
	Reminder     *certificate.Reminder
	Evaluations  *evaluation.Service
	Reports      *report.Service
	CPD          *cpd.Ledger
	Mailer       notify.Mailer
}

// Build wires repositories into services.
func Build(cfg config.App, infra *Infra, logger *zap.Logger) *Services {
	db := infra.DB.Client
	signer := auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	identitySvc := identity.NewService(identity.NewRepository(db), signer, logger.Named("identity"))
	trainingRepo := training.NewRepository(db)
	ledger := cpd.NewLedger(db)
	attendanceSvc := attendance.NewService(attendance.NewRepository(db, ledger), trainingRepo,
		identitySvc, identitySvc, cfg.QRTTL, logger.Named("attendance"))

	var mailer notify.Mailer = notify.NewLogMailer(cfg.MailFrom, logger.Named("mail"))
	if cfg.MailWebhookURL != "" {
		mailer = notify.NewWebhookMailer(cfg.MailWebhookURL, cfg.MailFrom)
	}
	var notifier notify.Notifier
	if cfg.QueueBackend == "memory" {
		notifier = notify.NewMailNotifier(mailer)
	} else {
		notifier = notify.NewQueueNotifier(infra.Queue)
	}
	var gate certificate.Gate
	if cfg.GateBackend == "memory" {
		gate = certificate.NewMemoryGate()
	} else {
		gate = certificate.NewRedisGate(infra.Redis.Client)
	}
	certRepo := certificate.NewRepository(db)

	return &Services{
		Signer:       signer,
		Identity:     identitySvc,
		Trainings:    training.NewService(trainingRepo, identitySvc, attendanceSvc, logger.Named("training")),
		Attendance:   attendanceSvc,
		Assessments:  assessment.NewService(assessment.NewRepository(db), trainingRepo, logger.Named("assessment")),
		Certificates: certificate.NewService(certRepo, trainingRepo, identitySvc, logger.Named("certificate")),
		Reminder:     certificate.NewReminder(certRepo, notifier, gate, logger.Named("reminder")),
		Evaluations:  evaluation.NewService(evaluation.NewRepository(db), trainingRepo, logger.Named("evaluation")),
		Reports:      report.NewService(report.NewRepository(db), logger.Named("report")),
		CPD:          ledger,
		Mailer:       mailer,
	}
}

// APIDeps assembles the HTTP layer's dependencies.
func (s *Services) APIDeps(cfg config.App, infra *Infra, logger *zap.Logger) api.Deps {
	return api.Deps{
		Identity:     s.Identity,
		Trainings:    s.Trainings,
		Attendance:   s.Attendance,
		Assessments:  s.Assessments,
		Certificates: s.Certificates,
		CPD:          s.CPD,
		Reports:      s.Reports,
		Evaluations:  s.Evaluations,
		Reminders:    s.Reminder,
		Signer:       s.Signer,
		CheckInLimit: httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Health: map[string]api.HealthCheck{
			"db":    infra.DB.Ping,
			"redis": infra.Redis.Ping,
		},
		Logger: logger,
	}
}
