// Package queue is the Redis list the task worker consumes. Producers RPUSH
// JSON tasks onto the tail and the worker pops from the head, so delivery is
// FIFO. LPOP is atomic, so a message is handed to exactly one consumer.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MURUGANQA/auth-service/internal/config"
	"github.com/MURUGANQA/auth-service/internal/domain"
)

// DefaultKey is the list the worker consumes when none is configured.
const DefaultKey = "task_queue"

// ErrMalformedTask is returned by DecodeTask for payloads the worker cannot
// process. Such payloads are never retried.
var ErrMalformedTask = errors.New("malformed task payload")

// Task is the wire format of a queue message.
type Task struct {
	TaskID string `json:"task_id,omitempty"`
	Task   string `json:"task"`
}

// Identity is the key results are stored under: the explicit task_id when
// present, otherwise the task string itself.
func (t Task) Identity() string {
	if t.TaskID != "" {
		return t.TaskID
	}
	return t.Task
}

// DecodeTask parses a queue payload. A payload that is not a JSON object or
// carries no task is reported as ErrMalformedTask.
func DecodeTask(payload []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	t.Task = strings.TrimSpace(t.Task)
	t.TaskID = strings.TrimSpace(t.TaskID)
	if t.Task == "" {
		return Task{}, fmt.Errorf("%w: task is required", ErrMalformedTask)
	}
	return t, nil
}

// EncodeTask serializes t for Push.
func EncodeTask(t Task) ([]byte, error) {
	if strings.TrimSpace(t.Task) == "" {
		return nil, domain.ErrValidation("task_required", "task is required")
	}
	return json.Marshal(t)
}

// NewClient creates a Redis client from configuration. The caller owns it and
// must Close it.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddress(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Queue is a single Redis list.
type Queue struct {
	client redis.Cmdable
	key    string
}

// New returns a Queue over key. An empty key selects DefaultKey.
func New(client redis.Cmdable, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: client, key: key}
}

// Key returns the list name.
func (q *Queue) Key() string { return q.key }

// Ping checks that Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return domain.ErrInfrastructure("ping redis", err)
	}
	return nil
}

// Pop removes the head of the list without blocking. ok is false when the
// list is empty.
func (q *Queue) Pop(ctx context.Context) (payload []byte, ok bool, err error) {
	b, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.ErrInfrastructure("pop task", err)
	}
	return b, true, nil
}

// BPop waits up to timeout for a message. ok is false when the timeout
// expired with the list still empty.
func (q *Queue) BPop(ctx context.Context, timeout time.Duration) (payload []byte, ok bool, err error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.ErrInfrastructure("blocking pop task", err)
	}
	// BLPOP replies with [key, value]
	if len(res) != 2 {
		return nil, false, domain.ErrInternal("unexpected BLPOP reply of length %d", len(res))
	}
	return []byte(res[1]), true, nil
}

// Push appends payload to the tail of the list.
func (q *Queue) Push(ctx context.Context, payload []byte) error {
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return domain.ErrInfrastructure("push task", err)
	}
	return nil
}

// PushTask encodes t and appends it to the list.
func (q *Queue) PushTask(ctx context.Context, t Task) error {
	payload, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.Push(ctx, payload)
}

// Len returns the number of queued messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, domain.ErrInfrastructure("queue length", err)
	}
	return n, nil
}
