package connect

import (
	"context"
	"sync"

	"github.com/ticlin/walink/internal/bus"
	"github.com/ticlin/walink/internal/poll"
	"github.com/ticlin/walink/internal/store"
	intsync "github.com/ticlin/walink/internal/sync"
	"go.uber.org/zap"
)

// Syncer is the slice of the synchronizer the pollers need. Every tick
// performs exactly one reconciliation through it; pollers never write
// instance state themselves.
type Syncer interface {
	Sync(ctx context.Context, instanceID string) (*intsync.Result, error)
}

// Status is the observable state of one instance's QR polling loop.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPolling   Status = "polling"
	StatusQRReady   Status = "qr_ready"
	StatusConnected Status = "connected"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusNotFound  Status = "not_found"
)

// Callbacks are delivered to the UI layer. All are optional.
type Callbacks struct {
	OnProgress  func(attempt, maxAttempts int)
	OnQRReady   func(qrCode string)
	OnConnected func()
	OnTimeout   func()
	OnError     func(message string)
}

// Snapshot is a point-in-time view of a polling loop for the API layer.
type Snapshot struct {
	Status      Status `json:"status"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Progress    int    `json:"progress"`
	QRCode      string `json:"qr_code,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// QRPoller runs the QR polling state machine, one loop per instance id.
// Loops for different instances run independently; two starts for the
// same instance collapse into one.
type QRPoller struct {
	cfg    poll.Config
	reg    *Registry
	syncer Syncer
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*qrSession
}

type qrSession struct {
	runner  *poll.Runner
	cb      Callbacks
	status  Status
	attempt int
	qr      string
	lastErr string
}

// NewQRPoller creates the poller with the configured budgets.
func NewQRPoller(cfg poll.Config, reg *Registry, syncer Syncer, b *bus.Bus, logger *zap.Logger) *QRPoller {
	return &QRPoller{
		cfg:      cfg,
		reg:      reg,
		syncer:   syncer,
		bus:      b,
		logger:   logger,
		sessions: make(map[string]*qrSession),
	}
}

// Start begins polling for an instance. When the instance already has an
// active driver the call is a silent no-op and returns false.
func (p *QRPoller) Start(instanceID string, cb Callbacks) bool {
	if !p.reg.Acquire(instanceID, RolePolling) {
		p.logger.Debug("qr poll start ignored, driver active",
			zap.String("instance_id", instanceID),
			zap.String("driver", string(p.reg.Driver(instanceID))))
		return false
	}

	sess := &qrSession{
		runner: poll.NewRunner(p.cfg),
		cb:     cb,
		status: StatusPolling,
	}
	p.mu.Lock()
	p.sessions[instanceID] = sess
	p.mu.Unlock()

	p.logger.Info("qr polling started",
		zap.String("instance_id", instanceID),
		zap.Int("max_attempts", p.cfg.MaxAttempts),
		zap.Duration("interval", p.cfg.Interval))

	sess.runner.Start(context.Background(),
		func(ctx context.Context, attempt int) poll.Verdict {
			return p.tick(ctx, instanceID, attempt)
		},
		func(outcome poll.Outcome) {
			p.finish(instanceID, outcome)
		})
	return true
}

func (p *QRPoller) tick(ctx context.Context, instanceID string, attempt int) poll.Verdict {
	p.mu.Lock()
	sess, ok := p.sessions[instanceID]
	if !ok {
		p.mu.Unlock()
		return poll.Failed
	}
	sess.attempt = attempt
	cb := sess.cb
	prevQR := sess.qr
	p.mu.Unlock()

	res, err := p.syncer.Sync(ctx, instanceID)
	if ctx.Err() != nil {
		// Stopped while the request was in flight; the runner discards this.
		return poll.Continue
	}

	if err != nil {
		p.logger.Warn("qr poll tick failed",
			zap.String("instance_id", instanceID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		p.mu.Lock()
		if sess := p.sessions[instanceID]; sess != nil {
			sess.status = StatusError
			sess.lastErr = err.Error()
		}
		p.mu.Unlock()
		if cb.OnError != nil {
			cb.OnError(err.Error())
		}
		p.bus.Emit(bus.KindInstanceError, instanceID, err.Error())
		// Transient failures consume the attempt and stay within budget.
		return poll.Continue
	}

	if res.NotFound {
		p.mu.Lock()
		if sess := p.sessions[instanceID]; sess != nil {
			sess.status = StatusNotFound
			sess.lastErr = "remote session does not exist"
		}
		p.mu.Unlock()
		if cb.OnError != nil {
			cb.OnError("remote session does not exist")
		}
		return poll.Failed
	}

	if res.State == store.StateOpen {
		// Handle success here rather than in finish: an externally pushed
		// connected event may stop this runner concurrently, and success
		// must never be swallowed by that race.
		p.mu.Lock()
		if sess := p.sessions[instanceID]; sess != nil {
			sess.status = StatusConnected
			sess.qr = ""
		}
		p.mu.Unlock()
		p.reg.Release(instanceID, RolePolling)
		p.logger.Info("qr polling observed connection",
			zap.String("instance_id", instanceID),
			zap.Int("attempt", attempt))
		if cb.OnConnected != nil {
			cb.OnConnected()
		}
		return poll.Done
	}

	if res.QRCode != "" && res.QRCode != prevQR {
		p.mu.Lock()
		if sess := p.sessions[instanceID]; sess != nil {
			sess.status = StatusQRReady
			sess.qr = res.QRCode
			sess.lastErr = ""
		}
		p.mu.Unlock()
		p.bus.Emit(bus.KindInstanceQRReady, instanceID, res.QRCode)
		if cb.OnQRReady != nil {
			cb.OnQRReady(res.QRCode)
		}
		// A later QR supersedes this one silently; keep polling so a scan
		// or a fresh code is still observed.
	}

	if cb.OnProgress != nil {
		cb.OnProgress(attempt, p.cfg.MaxAttempts)
	}
	return poll.Continue
}

func (p *QRPoller) finish(instanceID string, outcome poll.Outcome) {
	p.mu.Lock()
	sess := p.sessions[instanceID]
	var cb Callbacks
	if sess != nil {
		cb = sess.cb
	}
	p.mu.Unlock()

	switch outcome {
	case poll.OutcomeDone:
		// Success was already handled inside the tick.
	case poll.OutcomeFailed:
		p.reg.Release(instanceID, RolePolling)
	case poll.OutcomeTimeout:
		p.mu.Lock()
		if sess != nil && sess.status != StatusError {
			sess.status = StatusTimeout
		}
		p.mu.Unlock()
		p.reg.Release(instanceID, RolePolling)
		p.logger.Info("qr polling exhausted budget", zap.String("instance_id", instanceID))
		p.bus.Emit(bus.KindPollTimeout, instanceID, nil)
		if cb.OnTimeout != nil {
			cb.OnTimeout()
		}
	}
}

// Stop cancels an active loop and discards in-flight results. An active
// (non-terminal) loop resets to idle; a finished loop keeps its terminal
// snapshot for inspection. Idempotent.
func (p *QRPoller) Stop(instanceID string) {
	p.mu.Lock()
	sess := p.sessions[instanceID]
	p.mu.Unlock()
	if sess == nil {
		return
	}

	sess.runner.Stop()
	p.reg.Release(instanceID, RolePolling)

	p.mu.Lock()
	if sess.status == StatusPolling || sess.status == StatusQRReady {
		sess.status = StatusIdle
		sess.attempt = 0
		sess.qr = ""
		sess.lastErr = ""
	}
	p.mu.Unlock()
}

// Retry restarts polling after a terminal error or timeout, with the
// counters reset and the callbacks preserved.
func (p *QRPoller) Retry(instanceID string) bool {
	p.mu.Lock()
	sess := p.sessions[instanceID]
	if sess == nil || (sess.status != StatusError && sess.status != StatusTimeout) {
		p.mu.Unlock()
		return false
	}
	cb := sess.cb
	p.mu.Unlock()
	return p.Start(instanceID, cb)
}

// Snapshot reports the current loop state for an instance.
func (p *QRPoller) Snapshot(instanceID string) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.sessions[instanceID]
	if sess == nil {
		return Snapshot{Status: StatusIdle, MaxAttempts: p.cfg.MaxAttempts}
	}
	snap := Snapshot{
		Status:      sess.status,
		Attempt:     sess.attempt,
		MaxAttempts: p.cfg.MaxAttempts,
		QRCode:      sess.qr,
		LastError:   sess.lastErr,
	}
	if p.cfg.MaxAttempts > 0 {
		snap.Progress = sess.attempt * 100 / p.cfg.MaxAttempts
	}
	return snap
}

// Forget drops any session record for a deleted instance.
func (p *QRPoller) Forget(instanceID string) {
	p.Stop(instanceID)
	p.mu.Lock()
	delete(p.sessions, instanceID)
	p.mu.Unlock()
}
