package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stafftracker/internal/metrics"
	"stafftracker/internal/notify"
)

// Kind is the reminder a certificate is due for.
type Kind string

const (
	KindSoon    Kind = "soon"
	KindExpired Kind = "expired"
)

const (
	soonWindowDays = 7
	gateTTL        = 24 * time.Hour
)

// Decide returns the reminder the certificate should receive today, if any.
// A soon reminder covers the last week before expiry; an expired reminder
// covers the expiry day and after. Each fires at most once per expiry date.
func Decide(c Certificate, today time.Time) (Kind, bool) {
	days := DaysUntilExpiry(c, today)
	switch {
	case days >= 1 && days <= soonWindowDays && !c.ReminderSoonSent:
		return KindSoon, true
	case days <= 0 && !c.ReminderExpiredSent:
		return KindExpired, true
	}
	return "", false
}

// ReminderStore is what the reminder job reads and updates.
type ReminderStore interface {
	ListReminderCandidates(ctx context.Context, today time.Time) ([]Certificate, error)
	MarkReminded(ctx context.Context, id string, kind Kind) error
}

// RunReport summarizes one reminder run.
type RunReport struct {
	Soon    int `json:"soon"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Reminder sends expiry reminders and records which were sent.
type Reminder struct {
	store    ReminderStore
	notifier notify.Notifier
	gate     Gate
	logger   *zap.Logger
	now      func() time.Time
}

// NewReminder creates the reminder job.
func NewReminder(store ReminderStore, notifier notify.Notifier, gate Gate, logger *zap.Logger) *Reminder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = NewMemoryGate()
	}
	return &Reminder{store: store, notifier: notifier, gate: gate, logger: logger, now: time.Now}
}

// GateKey is the daily key guarding RunDaily.
func GateKey(today time.Time) string {
	return "cert_reminder_" + today.Format(DateLayout)
}

// RunDaily runs the reminders unless they already ran today.
func (r *Reminder) RunDaily(ctx context.Context) (bool, RunReport, error) {
	today := r.now()
	ok, err := r.gate.Acquire(ctx, GateKey(today), gateTTL)
	if err != nil {
		return false, RunReport{}, fmt.Errorf("acquire reminder gate: %w", err)
	}
	if !ok {
		return false, RunReport{}, nil
	}
	report, err := r.Run(ctx, today)
	return true, report, err
}

// Run evaluates every candidate certificate for today. A failed send is
// logged and leaves the flag unset so a later run retries it.
func (r *Reminder) Run(ctx context.Context, today time.Time) (RunReport, error) {
	certs, err := r.store.ListReminderCandidates(ctx, today)
	if err != nil {
		return RunReport{}, err
	}

	var report RunReport
	var errs []error
	for _, c := range certs {
		if c.Email == "" {
			continue
		}
		kind, due := Decide(c, today)
		if !due {
			continue
		}
		if err := r.notifier.Notify(ctx, message(c, kind, today)); err != nil {
			report.Failed++
			metrics.Reminders.WithLabelValues(string(kind), "failed").Inc()
			r.logger.Warn("certificate reminder failed", zap.String("certificate_id", c.ID), zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		if err := r.store.MarkReminded(ctx, c.ID, kind); err != nil {
			errs = append(errs, fmt.Errorf("certificate %s: %w", c.ID, err))
			continue
		}
		metrics.Reminders.WithLabelValues(string(kind), "sent").Inc()
		if kind == KindSoon {
			report.Soon++
		} else {
			report.Expired++
		}
	}
	r.logger.Info("certificate reminders run",
		zap.Int("soon", report.Soon),
		zap.Int("expired", report.Expired),
		zap.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}

func message(c Certificate, kind Kind, today time.Time) notify.Message {
	expiry := c.ExpiryDate.Format(DateLayout)
	if kind == KindSoon {
		return notify.Message{
			Kind:    "certificate_" + string(kind),
			To:      c.Email,
			Subject: "Expiry Soon: Certificate Expiry Reminder",
			Body: fmt.Sprintf(`Dear %s,

This is a formal reminder that your certificate for %q is due to expire on %s (in %d day(s)).

We kindly request you to take the necessary action to renew it before the expiration date to ensure continued compliance.

Thank you for your prompt attention.

Best regards,
Staff Training & Certificate Tracker
`, c.Holder(), c.TrainingTitle, expiry, DaysUntilExpiry(c, today)),
		}
	}
	return notify.Message{
		Kind:    "certificate_" + string(kind),
		To:      c.Email,
		Subject: "Expired: Certificate Expired",
		Body: fmt.Sprintf(`Dear %s,

We would like to inform you that your certificate for %q has expired on %s.

Please proceed to renew it at the earliest opportunity, or contact HR/Trainer for assistance.

Thank you for your attention.

Best regards,
Staff Training & Certificate Tracker
`, c.Holder(), c.TrainingTitle, expiry),
	}
}
