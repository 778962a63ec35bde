package notify

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NextRetryAt computes the next retry time using exponential backoff with
// full jitter. attempt is 1-based (1 => BaseDelay).
func NextRetryAt(now time.Time, attempt int, cfg BackoffConfig, rng *rand.Rand) time.Time {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}

	delay := cfg.BaseDelay
	for i := 1; i < attempt && delay < cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	jitter := time.Duration(rng.Int63n(int64(delay) + 1))
	return now.Add(jitter).UTC()
}

type WorkerConfig struct {
	Workers     int
	MaxAttempts int
	Backoff     BackoffConfig
}

// Worker drains the queue and emails tickets. Failed deliveries go back on
// the queue until MaxAttempts is reached.
type Worker struct {
	queue      Queue
	dispatcher *Dispatcher
	regs       repository.RegistrationRepository
	cfg        WorkerConfig
	log        logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewWorker(q Queue, d *Dispatcher, regs repository.RegistrationRepository, cfg WorkerConfig, l logger.Logger) *Worker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		queue:      q,
		dispatcher: d,
		regs:       regs,
		cfg:        cfg,
		log:        l,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run starts cfg.Workers consumers and blocks until ctx is canceled or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("notification worker started", "workers", w.cfg.Workers, "max_attempts", w.cfg.MaxAttempts)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		g.Go(func() error { return w.consume(ctx) })
	}
	err := g.Wait()

	w.log.Info("notification worker stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrQueueClosed) {
				return err
			}
			w.log.Error("dequeue failed", "error", err)
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process handles a single job. It never returns an error: failures are
// either rescheduled or logged as dropped.
func (w *Worker) Process(ctx context.Context, job Job) {
	log := w.log.With("registration_id", job.RegistrationID, "attempt", job.Attempt+1)

	reg, err := w.regs.Get(ctx, job.RegistrationID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Info("notification dropped, registration is gone")
			return
		}
		w.retry(ctx, job, err)
		return
	}
	if reg.Status == model.StatusCancelled {
		log.Info("notification dropped, registration cancelled")
		return
	}

	if _, err := w.dispatcher.SendTicket(ctx, reg); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Info("notification dropped", "error", err)
			return
		}
		w.retry(ctx, job, err)
		return
	}
	log.Debug("notification delivered")
}

func (w *Worker) retry(ctx context.Context, job Job, cause error) {
	job.Attempt++
	if job.Attempt >= w.cfg.MaxAttempts {
		w.log.Error("notification abandoned",
			"registration_id", job.RegistrationID,
			"attempts", job.Attempt,
			"error", cause,
		)
		return
	}

	w.mu.Lock()
	job.NotBefore = NextRetryAt(time.Now(), job.Attempt, w.cfg.Backoff, w.rng)
	w.mu.Unlock()

	if err := w.queue.Enqueue(ctx, job); err != nil {
		w.log.Error("notification retry not scheduled",
			"registration_id", job.RegistrationID,
			"error", err,
			"cause", cause,
		)
		return
	}
	w.log.Warn("notification failed, retry scheduled",
		"registration_id", job.RegistrationID,
		"attempt", job.Attempt,
		"next_retry_at", job.NotBefore,
		"error", cause,
	)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
