package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stafftracker/internal/metrics"
	"stafftracker/internal/queue"
)

// MessageType marks notification messages on the queue.
const MessageType = "notification"

// Message is an email-style notification.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier accepts notifications for delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Mailer delivers a notification to its recipient.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("notification has no recipient")

func prepare(msg *Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return nil
}

// LogMailer writes notifications to the log instead of an SMTP relay.
type LogMailer struct {
	from   string
	logger *zap.Logger
}

// NewLogMailer creates a mailer that logs each message.
func NewLogMailer(from string, logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{from: from, logger: logger}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail sent",
		zap.String("id", msg.ID),
		zap.String("kind", msg.Kind),
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

// MailNotifier sends synchronously through a mailer.
type MailNotifier struct {
	mailer Mailer
}

// NewMailNotifier wraps a mailer.
func NewMailNotifier(mailer Mailer) *MailNotifier {
	return &MailNotifier{mailer: mailer}
}

// Notify sends the message now.
func (n *MailNotifier) Notify(ctx context.Context, msg Message) error {
	if err := prepare(&msg); err != nil {
		return err
	}
	return n.mailer.Send(ctx, msg)
}

// QueueNotifier hands notifications to the worker through a queue.
type QueueNotifier struct {
	q queue.Queue
}

// NewQueueNotifier publishes to q.
func NewQueueNotifier(q queue.Queue) *QueueNotifier {
	return &QueueNotifier{q: q}
}

// Notify enqueues the message.
func (n *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	if err := prepare(&msg); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// Deliver consumes queued notifications and sends them through mailer until
// ctx is cancelled. A failed send is retried until it has been tried
// maxAttempts times, then buried along with messages that cannot be decoded.
func Deliver(ctx context.Context, q queue.Queue, mailer Mailer, maxAttempts int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume notifications: %w", err)
	}
	bury := func(m queue.Message, reason string) {
		metrics.Notifications.WithLabelValues("dead").Inc()
		if err := q.Bury(ctx, m, reason); err != nil {
			logger.Error("bury notification", zap.String("queue_id", m.ID), zap.Error(err))
		}
	}

	for m := range messages {
		if m.Type != MessageType {
			logger.Warn("unknown message type", zap.String("type", m.Type), zap.String("queue_id", m.ID))
			bury(m, "unknown message type "+m.Type)
			continue
		}
		var msg Message
		if err := json.Unmarshal(m.Body, &msg); err != nil {
			logger.Error("decode notification", zap.String("queue_id", m.ID), zap.Error(err))
			bury(m, "decode: "+err.Error())
			continue
		}
		err := mailer.Send(ctx, msg)
		if err == nil {
			metrics.Notifications.WithLabelValues("sent").Inc()
			continue
		}
		log := logger.With(zap.String("id", msg.ID), zap.String("to", msg.To), zap.Int("attempt", m.Attempts+1), zap.Error(err))
		if errors.Is(err, ErrNoRecipient) || m.Attempts+1 >= maxAttempts {
			log.Error("notification undeliverable")
			bury(m, err.Error())
			continue
		}
		log.Warn("notification send failed, will retry")
		metrics.Notifications.WithLabelValues("retried").Inc()
		if err := q.Retry(ctx, m); err != nil && ctx.Err() == nil {
			logger.Error("requeue notification", zap.String("id", msg.ID), zap.Error(err))
		}
	}
	return nil
}
