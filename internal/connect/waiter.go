package connect

import (
	"context"
	"sync"
	"time"

	"github.com/ticlin/walink/internal/poll"
	"github.com/ticlin/walink/internal/store"
	"go.uber.org/zap"
)

// WaiterCallbacks are delivered while waiting for an externally scanned
// session to come up. All are optional.
type WaiterCallbacks struct {
	OnConnected func()
	OnTimeout   func()
	OnNotFound  func()
}

// Waiter handles the "already connected" path: the user claims the
// session is linked on their phone, so there is no QR to show, only a
// bounded wait for the remote to report open.
type Waiter struct {
	interval time.Duration
	timeout  time.Duration
	reg      *Registry
	syncer   Syncer
	logger   *zap.Logger

	mu      sync.Mutex
	runners map[string]*poll.Runner
}

// NewWaiter creates a waiter with the configured cadence and wall-clock
// deadline. There is no attempt budget; only elapsed time ends the wait.
func NewWaiter(interval, timeout time.Duration, reg *Registry, syncer Syncer, logger *zap.Logger) *Waiter {
	return &Waiter{
		interval: interval,
		timeout:  timeout,
		reg:      reg,
		syncer:   syncer,
		logger:   logger,
		runners:  make(map[string]*poll.Runner),
	}
}

// Start begins waiting for an instance. Refused (returns false) when any
// driver already holds the instance.
func (w *Waiter) Start(instanceID string, cb WaiterCallbacks) bool {
	if !w.reg.Acquire(instanceID, RoleWaiting) {
		w.logger.Debug("wait start ignored, driver active",
			zap.String("instance_id", instanceID),
			zap.String("driver", string(w.reg.Driver(instanceID))))
		return false
	}

	runner := poll.NewRunner(poll.Config{
		Interval: w.interval,
		Timeout:  w.timeout,
	})
	w.mu.Lock()
	w.runners[instanceID] = runner
	w.mu.Unlock()

	w.logger.Info("waiting for external connection",
		zap.String("instance_id", instanceID),
		zap.Duration("timeout", w.timeout))

	runner.Start(context.Background(),
		func(ctx context.Context, _ int) poll.Verdict {
			return w.tick(ctx, instanceID, cb)
		},
		func(outcome poll.Outcome) {
			w.finish(instanceID, outcome, cb)
		})
	return true
}

func (w *Waiter) tick(ctx context.Context, instanceID string, cb WaiterCallbacks) poll.Verdict {
	res, err := w.syncer.Sync(ctx, instanceID)
	if ctx.Err() != nil {
		return poll.Continue
	}
	if err != nil {
		// Transient; keep waiting until the deadline.
		w.logger.Warn("wait tick failed",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		return poll.Continue
	}
	if res.NotFound {
		return poll.Failed
	}
	if res.State == store.StateOpen {
		w.reg.Release(instanceID, RoleWaiting)
		w.logger.Info("external connection confirmed", zap.String("instance_id", instanceID))
		if cb.OnConnected != nil {
			cb.OnConnected()
		}
		return poll.Done
	}
	return poll.Continue
}

func (w *Waiter) finish(instanceID string, outcome poll.Outcome, cb WaiterCallbacks) {
	w.mu.Lock()
	delete(w.runners, instanceID)
	w.mu.Unlock()

	switch outcome {
	case poll.OutcomeDone:
		// Already handled inside the tick.
	case poll.OutcomeFailed:
		w.reg.Release(instanceID, RoleWaiting)
		if cb.OnNotFound != nil {
			cb.OnNotFound()
		}
	case poll.OutcomeTimeout:
		w.reg.Release(instanceID, RoleWaiting)
		w.logger.Info("wait deadline elapsed without connection",
			zap.String("instance_id", instanceID))
		if cb.OnTimeout != nil {
			cb.OnTimeout()
		}
	}
}

// Cancel stops an active wait and discards any in-flight result.
// Idempotent; unknown instances are a no-op.
func (w *Waiter) Cancel(instanceID string) {
	w.mu.Lock()
	runner := w.runners[instanceID]
	delete(w.runners, instanceID)
	w.mu.Unlock()
	if runner == nil {
		return
	}
	runner.Stop()
	w.reg.Release(instanceID, RoleWaiting)
}

// Active reports whether a wait is in progress for the instance.
func (w *Waiter) Active(instanceID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.runners[instanceID]
	return ok
}
