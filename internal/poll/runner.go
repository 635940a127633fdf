// Package poll provides the single cancellable poll primitive every
// connection-lifecycle component composes: an attempt budget, a wall-clock
// deadline, a fixed interval between ticks and an idempotent stop that
// discards in-flight results.
package poll

import (
	"context"
	"sync"
	"time"
)

// Verdict is what a tick tells the runner to do next.
type Verdict int

const (
	Continue Verdict = iota
	Done
	Failed
)

// Outcome is how a loop ended. A stopped loop has no outcome: Stop
// suppresses the finish callback entirely.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeFailed
	OutcomeTimeout
)

// Config holds the loop budgets. Zero MaxAttempts or Timeout means that
// budget is unbounded (used by the background auto checker).
type Config struct {
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

// TickFunc performs one attempt. attempt starts at 1.
type TickFunc func(ctx context.Context, attempt int) Verdict

// FinishFunc receives the terminal outcome of a loop that was not stopped.
type FinishFunc func(outcome Outcome)

// Runner drives one polling loop. It is reusable: after the loop ends or
// is stopped, Start may be called again.
type Runner struct {
	cfg Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewRunner creates a runner with the given budgets.
func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

// Start launches the loop. The first tick fires immediately, later ticks
// at the configured interval. Budgets are checked before each tick.
// Returns false without side effects if a loop is already running
// (idempotent start guard).
func (r *Runner) Start(ctx context.Context, tick TickFunc, finish FinishFunc) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(ctx, tick, finish)
	return true
}

// Stop cancels the loop without invoking the finish callback. Any
// in-flight tick result is discarded. Idempotent.
func (r *Runner) Stop() {
	r.halt()
}

// Running reports whether a loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// halt transitions running -> stopped. Returns true for the caller that
// performed the transition; everyone else gets false. This is what makes
// Stop idempotent and keeps a stopped loop from firing callbacks.
func (r *Runner) halt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return false
	}
	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return true
}

func (r *Runner) loop(ctx context.Context, tick TickFunc, finish FinishFunc) {
	var deadline time.Time
	if r.cfg.Timeout > 0 {
		deadline = time.Now().Add(r.cfg.Timeout)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if r.cfg.MaxAttempts > 0 && attempt >= r.cfg.MaxAttempts {
			r.finish(finish, OutcomeTimeout)
			return
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			r.finish(finish, OutcomeTimeout)
			return
		}

		attempt++
		verdict := tick(ctx, attempt)
		if ctx.Err() != nil {
			// Stopped while the tick was in flight; the result is discarded.
			return
		}

		switch verdict {
		case Done:
			r.finish(finish, OutcomeDone)
			return
		case Failed:
			r.finish(finish, OutcomeFailed)
			return
		}

		timer.Reset(r.cfg.Interval)
	}
}

func (r *Runner) finish(finish FinishFunc, outcome Outcome) {
	if !r.halt() {
		return
	}
	if finish != nil {
		finish(outcome)
	}
}
