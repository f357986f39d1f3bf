package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"stafftracker/internal/bootstrap"
	"stafftracker/internal/config"
	"stafftracker/internal/logging"
	"stafftracker/internal/notify"
)

// Worker runs the scheduled absence sweep, certificate reminders and token
// purge, and delivers queued notifications.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer infra.Close()

	svc := bootstrap.Build(cfg, infra, logger)
	if relay, ok := svc.Mailer.(*notify.WebhookMailer); ok {
		if err := relay.Health(ctx); err != nil {
			logger.Warn("mail relay not available, deliveries will fail until it recovers", zap.Error(err))
		} else {
			logger.Info("mail relay connected", zap.String("url", relay.BaseURL))
		}
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.SweepSchedule, func() { sweep(ctx, svc, logger) }); err != nil {
		logger.Fatal("invalid sweep schedule", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
	}
	if _, err := c.AddFunc(cfg.ReminderSchedule, func() { remind(ctx, svc, logger) }); err != nil {
		logger.Fatal("invalid reminder schedule", zap.String("schedule", cfg.ReminderSchedule), zap.Error(err))
	}
	if _, err := c.AddFunc("@hourly", func() { purge(ctx, svc, logger) }); err != nil {
		logger.Fatal("invalid purge schedule", zap.Error(err))
	}
	c.Start()

	var wg sync.WaitGroup
	if cfg.QueueBackend != "memory" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notify.Deliver(ctx, infra.Queue, svc.Mailer, cfg.MailMaxAttempts, logger.Named("deliver")); err != nil {
				logger.Error("notification delivery stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("worker started",
		zap.String("sweep_schedule", cfg.SweepSchedule),
		zap.String("reminder_schedule", cfg.ReminderSchedule))
	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduled jobs did not finish in time")
	}
	wg.Wait()
	logger.Info("worker stopped")
}

func sweep(ctx context.Context, svc *bootstrap.Services, logger *zap.Logger) {
	results, err := svc.Attendance.SweepAll(ctx, false)
	if err != nil {
		logger.Error("absence sweep failed", zap.Error(err))
	}
	total := 0
	for _, r := range results {
		total += r.Marked
	}
	if total > 0 {
		logger.Info("absence sweep", zap.Int("trainings", len(results)), zap.Int("marked_absent", total))
	}
}

func remind(ctx context.Context, svc *bootstrap.Services, logger *zap.Logger) {
	ran, rep, err := svc.Reminder.RunDaily(ctx)
	if err != nil {
		logger.Error("certificate reminders failed", zap.Error(err))
		return
	}
	if ran {
		logger.Info("certificate reminders",
			zap.Int("soon", rep.Soon), zap.Int("expired", rep.Expired), zap.Int("failed", rep.Failed))
	}
}

func purge(ctx context.Context, svc *bootstrap.Services, logger *zap.Logger) {
	n, err := svc.Attendance.PurgeExpiredTokens(ctx)
	if err != nil {
		logger.Error("token purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("purged expired check-in tokens", zap.Int("count", n))
	}
}
