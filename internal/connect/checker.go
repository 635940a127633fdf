package connect

import (
	"context"
	"sync"
	"time"

	"github.com/ticlin/walink/internal/poll"
	"github.com/ticlin/walink/internal/store"
	"go.uber.org/zap"
)

// AutoChecker keeps instances that are neither open nor being actively
// driven under periodic reconciliation. It runs with no attempt budget
// and no deadline; it stops itself when the instance connects or the
// remote session disappears, and yields immediately to the QR poller or
// the waiter via the registry.
type AutoChecker struct {
	interval time.Duration
	reg      *Registry
	syncer   Syncer
	logger   *zap.Logger

	mu      sync.Mutex
	runners map[string]*poll.Runner
}

// NewAutoChecker creates the background checker.
func NewAutoChecker(interval time.Duration, reg *Registry, syncer Syncer, logger *zap.Logger) *AutoChecker {
	return &AutoChecker{
		interval: interval,
		reg:      reg,
		syncer:   syncer,
		logger:   logger,
		runners:  make(map[string]*poll.Runner),
	}
}

// Start begins background checking for an instance. Returns false when
// another driver holds the instance or a check is already running.
func (a *AutoChecker) Start(instanceID string) bool {
	if !a.reg.Acquire(instanceID, RoleChecking) {
		return false
	}

	runner := poll.NewRunner(poll.Config{Interval: a.interval})
	a.mu.Lock()
	a.runners[instanceID] = runner
	a.mu.Unlock()

	a.logger.Debug("auto check started",
		zap.String("instance_id", instanceID),
		zap.Duration("interval", a.interval))

	runner.Start(context.Background(),
		func(ctx context.Context, _ int) poll.Verdict {
			return a.tick(ctx, instanceID)
		},
		func(outcome poll.Outcome) {
			a.finish(instanceID, outcome)
		})
	return true
}

func (a *AutoChecker) tick(ctx context.Context, instanceID string) poll.Verdict {
	res, err := a.syncer.Sync(ctx, instanceID)
	if ctx.Err() != nil {
		return poll.Continue
	}
	if err != nil {
		a.logger.Debug("auto check tick failed",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		return poll.Continue
	}
	if res.NotFound {
		return poll.Failed
	}
	if res.State == store.StateOpen {
		a.reg.Release(instanceID, RoleChecking)
		a.logger.Info("auto check observed connection", zap.String("instance_id", instanceID))
		return poll.Done
	}
	return poll.Continue
}

func (a *AutoChecker) finish(instanceID string, outcome poll.Outcome) {
	a.mu.Lock()
	delete(a.runners, instanceID)
	a.mu.Unlock()
	if outcome != poll.OutcomeDone {
		a.reg.Release(instanceID, RoleChecking)
	}
}

// Stop cancels the background check for an instance, typically to hand
// the driver slot to the QR poller or the waiter. Idempotent.
func (a *AutoChecker) Stop(instanceID string) {
	a.mu.Lock()
	runner := a.runners[instanceID]
	delete(a.runners, instanceID)
	a.mu.Unlock()
	if runner == nil {
		return
	}
	runner.Stop()
	a.reg.Release(instanceID, RoleChecking)
}

// StopAll cancels every running check, for shutdown.
func (a *AutoChecker) StopAll() {
	a.mu.Lock()
	runners := a.runners
	a.runners = make(map[string]*poll.Runner)
	a.mu.Unlock()
	for id, runner := range runners {
		runner.Stop()
		a.reg.Release(id, RoleChecking)
	}
}

// Checking reports whether a background check runs for the instance.
func (a *AutoChecker) Checking(instanceID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.runners[instanceID]
	return ok
}
