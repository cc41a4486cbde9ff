package preload

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is how often the index is rebuilt.
const DefaultInterval = 12 * time.Hour

var ErrAlreadyRunning = errors.New("preload scheduler already running")

type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler runs one build immediately and then one every interval for as
// long as its context lives. Builds never overlap: every build, scheduled or
// requested, runs under the same lock.
//
// Shutdown: cancelling the context given to Run abandons the in-flight build
// (the runner publishes nothing) and Run returns ctx.Err().
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	building atomic.Bool
	running  atomic.Bool
	trigger  chan struct{}
}

func NewScheduler(r Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   r,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	for {
		s.runOnce(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
			s.logger.Info("GE refresh requested")
		}
	}
}

// Trigger asks a running scheduler for an early rebuild. Requests made while
// one is already pending are merged; it reports whether this call queued one.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// BuildNow runs a build on the caller's goroutine, waiting for any build in
// progress to finish first.
func (s *Scheduler) BuildNow(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.building.Store(true)
	defer s.building.Store(false)
	return s.runner.Run(ctx)
}

// State is "building" while a build is in progress and "idle" otherwise.
func (s *Scheduler) State() string {
	if s.building.Load() {
		return "building"
	}
	return "idle"
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("GE preload panicked", slog.Any("panic", r))
		}
	}()
	if _, err := s.BuildNow(ctx); err != nil && !errors.Is(err, ErrAborted) {
		s.logger.Error("GE preload failed", slog.String("error", err.Error()))
	}
}
