package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Job asks for the ticket of one registration to be emailed. Attempt counts
// the failed deliveries so far.
type Job struct {
	RegistrationID string    `json:"registration_id"`
	Attempt        int       `json:"attempt"`
	NotBefore      time.Time `json:"not_before,omitempty"`
}

// Queue carries jobs from committed registrations to the workers. A job
// with NotBefore in the future is held back until then without blocking the
// jobs behind it.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a due job is available, ctx is done or the queue
	// is closed.
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// MemoryQueue is a bounded in-process queue. Jobs are lost on restart.
type MemoryQueue struct {
	jobs      chan Job
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	delayed int
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{jobs: make(chan Job, size), done: make(chan struct{})}
}

// Enqueue never blocks; it fails with ErrQueueFull instead. Delayed jobs
// count against the bound while they wait.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs)+q.delayed >= cap(q.jobs) {
		return ErrQueueFull
	}

	if wait := time.Until(job.NotBefore); wait > 0 {
		q.delayed++
		time.AfterFunc(wait, func() { q.release(job) })
		return nil
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// release moves a delayed job onto the ready channel once it is due.
func (q *MemoryQueue) release(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed--
	select {
	case <-q.done:
		return
	default:
	}
	// Enqueue reserved a slot for this job, so the send cannot block.
	q.jobs <- job
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		return Job{}, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Len returns the number of waiting jobs, delayed ones included.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) + q.delayed
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// NewRedisClient connects to the Redis server in cfg.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return cli, nil
}

// promoteDue moves delayed jobs whose score (NotBefore in unix millis) has
// passed from the sorted set onto the ready list.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, raw in ipairs(due) do
	redis.call('ZREM', KEYS[1], raw)
	redis.call('LPUSH', KEYS[2], raw)
end
return #due
`)

const promoteBatch = 100

// RedisQueue keeps ready jobs in a Redis list and retries in a sorted set
// scored by NotBefore, so they survive restarts and can be shared by several
// service instances.
type RedisQueue struct {
	cli         *redis.Client
	key         string
	delayedKey  string
	pollTimeout time.Duration
}

func NewRedisQueue(cli *redis.Client, key string) *RedisQueue {
	return &RedisQueue{cli: cli, key: key, delayedKey: key + ":delayed", pollTimeout: time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if job.NotBefore.After(time.Now()) {
		err = q.cli.ZAdd(ctx, q.delayedKey, redis.Z{
			Score:  float64(job.NotBefore.UnixMilli()),
			Member: string(raw),
		}).Err()
	} else {
		err = q.cli.LPush(ctx, q.key, raw).Err()
	}
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		err := promoteDue.Run(ctx, q.cli, []string{q.delayedKey, q.key}, time.Now().UnixMilli(), promoteBatch).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrQueueClosed
			}
			return Job{}, fmt.Errorf("promote delayed notifications: %w", err)
		}

		res, err := q.cli.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrQueueClosed
			}
			return Job{}, fmt.Errorf("dequeue notification: %w", err)
		}

		// BRPOP replies with [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// Close leaves the shared client open; its owner closes it.
func (q *RedisQueue) Close() error { return nil }
