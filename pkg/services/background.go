package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRunnerClosed is returned when a job is submitted after Close.
var ErrRunnerClosed = errors.New("background runner closed")

// BackgroundRunnerConfig configures the background job runner.
type BackgroundRunnerConfig struct {
	MaxConcurrent int           // Maximum concurrently running jobs (default: 4)
	Timeout       time.Duration // Bound on a single job (default: 2m)
}

// BackgroundRunner runs fire-and-forget jobs after a response has been sent.
// Jobs run on a context detached from the submitting request so a client
// disconnect does not cancel them. Concurrency is bounded by a semaphore;
// submitting never blocks.
type BackgroundRunner struct {
	config BackgroundRunnerConfig
	logger *zap.Logger
	sem    chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewBackgroundRunner creates a new background job runner.
func NewBackgroundRunner(config BackgroundRunnerConfig, logger *zap.Logger) *BackgroundRunner {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &BackgroundRunner{
		config: config,
		logger: logger.Named("background"),
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Go schedules job. Values on ctx (request id, logger fields) are kept but
// its cancellation is not. Errors and panics are logged and discarded.
func (r *BackgroundRunner) Go(ctx context.Context, name string, job func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	detached := context.WithoutCancel(ctx)

	go func() {
		defer r.wg.Done()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		jobCtx, cancel := context.WithTimeout(detached, r.config.Timeout)
		defer cancel()

		start := time.Now()
		err := r.run(jobCtx, name, job)
		if err != nil {
			r.logger.Warn("Background job failed",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			return
		}
		r.logger.Debug("Background job finished",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)))
	}()

	return nil
}

func (r *BackgroundRunner) run(ctx context.Context, name string, job func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", name, p)
		}
	}()
	return job(ctx)
}

// Close stops accepting jobs and waits for running and queued jobs to finish,
// or for ctx to end.
func (r *BackgroundRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background jobs: %w", ctx.Err())
	}
}
