package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SweepRunnerConfig holds configuration for the sweep runner
type SweepRunnerConfig struct {
	// Interval between sweeps (default: 1h)
	Interval time.Duration

	// Timeout bounds a single sweep (default: 5m)
	Timeout time.Duration
}

func DefaultSweepRunnerConfig() SweepRunnerConfig {
	return SweepRunnerConfig{
		Interval: time.Hour,
		Timeout:  5 * time.Minute,
	}
}

// Sweeper is the unit of work the runner repeats.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
}

// SweepRunner runs a Sweeper once at start and then on every interval.
type SweepRunner struct {
	sweeper Sweeper
	config  SweepRunnerConfig
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweepRunner(sweeper Sweeper, config SweepRunnerConfig) *SweepRunner {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepRunnerConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSweepRunnerConfig().Timeout
	}
	return &SweepRunner{
		sweeper: sweeper,
		config:  config,
		now:     time.Now,
	}
}

// Start begins the loop. Returns an error if already running.
func (r *SweepRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sweep runner is already running")
	}
	r.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	r.stopCh, r.doneCh = stopCh, doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Sweep runner started", "interval", r.config.Interval)
	return nil
}

// Stop signals the loop and waits for the in-flight sweep to finish.
func (r *SweepRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sweep runner stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sweep runner stop timed out")
		return ctx.Err()
	}
}

func (r *SweepRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *SweepRunner) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	r.runOnce(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *SweepRunner) runOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if _, err := r.sweeper.Sweep(sweepCtx, r.now()); err != nil {
		slog.ErrorContext(ctx, "Sweep failed", "error", err)
	}
}
