package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one evaluation pass.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the evaluation loop on a fixed interval and accepts
// out-of-band triggers. At most one tick executes at a time; a tick or
// trigger arriving while a run is in flight is dropped, not queued.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	trigger chan struct{}
	inRun   sync.Mutex
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// TriggerNow requests a single out-of-band evaluation. The request is
// coalesced with any trigger already pending and is subject to the same
// single-run guard as scheduled ticks.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
		s.logger.Info().Msg("manual evaluation requested")
	default:
		s.logger.Debug().Msg("manual trigger already pending; coalesced")
	}
}

// Run blocks, invoking the tick function on every interval and on manual
// trigger, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.dispatch(ctx, &wg, tick, "interval")
		case <-s.trigger:
			s.dispatch(ctx, &wg, tick, "manual")
		}
	}
}

// dispatch starts one run unless another is still in flight.
func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup, tick TickFunc, reason string) {
	if !s.inRun.TryLock() {
		s.logger.Warn().Str("reason", reason).Msg("evaluation still in progress; dropping this run")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.inRun.Unlock()

		started := time.Now()
		s.logger.Info().Str("reason", reason).Msg("executing evaluation run")
		if err := tick(ctx); err != nil {
			s.logger.Error().Err(err).Str("reason", reason).Msg("evaluation run failed")
			return
		}
		s.logger.Debug().Dur("elapsed", time.Since(started)).Msg("evaluation run finished")
	}()
}
