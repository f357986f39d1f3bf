package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list notifications are pushed to. Buried messages
// go to DefaultKey + ":dead".
const DefaultKey = "stafftracker:notifications"

// maxDead caps the dead-letter list; older entries are trimmed.
const maxDead = 1000

// Message is one unit of work. Attempts counts failed deliveries so far.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Body       json.RawMessage `json:"body,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DeadLetter is a message that will not be retried.
type DeadLetter struct {
	Message  Message   `json:"message"`
	Reason   string    `json:"reason"`
	BuriedAt time.Time `json:"buried_at"`
	// Raw holds the entry when it could not be decoded as a Message.
	Raw string `json:"raw,omitempty"`
}

// Queue is implemented by the Redis and in-memory backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
	// Retry re-enqueues a failed message with its attempt count increased.
	Retry(ctx context.Context, msg Message) error
	// Bury parks a message for inspection instead of retrying it.
	Bury(ctx context.Context, msg Message, reason string) error
	// DeadLetters lists up to limit buried messages, newest first.
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
}

func stamp(msg *Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
}

// InMemory is a channel-backed queue for dev and tests. Messages are lost
// on restart.
type InMemory struct {
	ch chan Message

	mu   sync.Mutex
	dead []DeadLetter
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	stamp(&msg)
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume streams messages until ctx is cancelled.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Retry re-enqueues msg.
func (q *InMemory) Retry(ctx context.Context, msg Message) error {
	msg.Attempts++
	return q.Publish(ctx, msg)
}

// Bury records msg as a dead letter.
func (q *InMemory) Bury(_ context.Context, msg Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append([]DeadLetter{{Message: msg, Reason: reason, BuriedAt: time.Now().UTC()}}, q.dead...)
	if len(q.dead) > maxDead {
		q.dead = q.dead[:maxDead]
	}
	return nil
}

// DeadLetters returns the newest buried messages.
func (q *InMemory) DeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.dead) {
		limit = len(q.dead)
	}
	out := make([]DeadLetter, limit)
	copy(out, q.dead[:limit])
	return out, nil
}

// RedisQueue is a Redis list queue: LPUSH to publish, BRPOP to consume.
type RedisQueue struct {
	client  *redis.Client
	key     string
	deadKey string
}

// NewRedisQueue builds a queue on key, falling back to DefaultKey.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, deadKey: key + ":dead"}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	stamp(&msg)
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams messages using BRPOP. Entries that do not decode are
// buried with their raw payload.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				_ = q.push(ctx, DeadLetter{Reason: "decode: " + err.Error(), BuriedAt: time.Now().UTC(), Raw: res[1]})
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Retry pushes msg to the back of the queue with one more attempt recorded.
func (q *RedisQueue) Retry(ctx context.Context, msg Message) error {
	msg.Attempts++
	return q.Publish(ctx, msg)
}

// Bury moves msg to the dead-letter list.
func (q *RedisQueue) Bury(ctx context.Context, msg Message, reason string) error {
	return q.push(ctx, DeadLetter{Message: msg, Reason: reason, BuriedAt: time.Now().UTC()})
}

func (q *RedisQueue) push(ctx context.Context, d DeadLetter) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, q.deadKey, raw)
		p.LTrim(ctx, q.deadKey, 0, maxDead-1)
		return nil
	})
	return err
}

// DeadLetters reads the newest buried messages.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 || limit > maxDead {
		limit = maxDead
	}
	entries, err := q.client.LRange(ctx, q.deadKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(entries))
	for _, e := range entries {
		var d DeadLetter
		if err := json.Unmarshal([]byte(e), &d); err != nil {
			d = DeadLetter{Reason: "undecodable dead letter", Raw: e}
		}
		out = append(out, d)
	}
	return out, nil
}
