// Package sync reconciles remote session state into the persisted
// instance records. It owns the only write path for connection state:
// every poller and the webhook ingest go through it.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"

	"github.com/panjf2000/ants/v2"
	"github.com/ticlin/walink/internal/bus"
	"github.com/ticlin/walink/internal/gateway"
	"github.com/ticlin/walink/internal/store"
	"go.uber.org/zap"
)

// ErrUnknownInstance is returned when the instance id has no local record.
var ErrUnknownInstance = errors.New("unknown instance")

// StatusReader is the slice of the gateway client the synchronizer needs.
type StatusReader interface {
	SessionStatus(ctx context.Context, sessionID string) (*gateway.Status, error)
}

// Result is the outcome of one reconciliation.
type Result struct {
	InstanceID string
	State      store.State
	QRCode     string
	NotFound   bool
}

// Aggregate summarizes a SyncAll fan-out. One instance failing never
// aborts the others.
type Aggregate struct {
	Synced   int
	Open     int
	NotFound int
	Failed   int
	Results  map[string]*Result
	Errors   map[string]string
}

// Synchronizer performs idempotent remote-to-local reconciliation.
type Synchronizer struct {
	db     *store.DB
	gw     StatusReader
	bus    *bus.Bus
	logger *zap.Logger
	pool   *ants.Pool
}

// NewSynchronizer creates a synchronizer with a bounded worker pool for
// bulk fan-out.
func NewSynchronizer(db *store.DB, gw StatusReader, b *bus.Bus, workers int, logger *zap.Logger) (*Synchronizer, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("sync pool: %w", err)
	}
	return &Synchronizer{
		db:     db,
		gw:     gw,
		bus:    b,
		logger: logger,
		pool:   pool,
	}, nil
}

// Close releases the worker pool.
func (s *Synchronizer) Close() {
	s.pool.Release()
}

// Sync performs exactly one remote status read and writes the normalized
// state back to the persisted record. On a transport failure the previous
// persisted state is left untouched and the error is returned. A remote
// session that no longer exists forces the local record to disconnected
// and is reported through Result.NotFound rather than as an error.
func (s *Synchronizer) Sync(ctx context.Context, instanceID string) (*Result, error) {
	inst, err := s.db.GetInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst == nil {
		return nil, ErrUnknownInstance
	}

	st, err := s.gw.SessionStatus(ctx, inst.RemoteSessionID)
	if errors.Is(err, gateway.ErrSessionNotFound) {
		if err := s.db.ApplyStatus(inst.ID, store.StateDisconnected, "", "", ""); err != nil {
			return nil, fmt.Errorf("apply not-found state: %w", err)
		}
		s.bus.Emit(bus.KindInstanceNotFound, inst.ID, nil)
		s.logger.Warn("remote session gone, local record disconnected",
			zap.String("instance_id", inst.ID),
			zap.String("remote_session_id", inst.RemoteSessionID))
		return &Result{InstanceID: inst.ID, State: store.StateDisconnected, NotFound: true}, nil
	}
	if err != nil {
		return nil, err
	}

	return s.Apply(inst, st)
}

// Apply writes an already-fetched remote status through the single write
// path. The webhook ingest uses this directly (push instead of poll).
// Raw pairing payloads are rendered to a data URL here, so nothing
// downstream (store, bus, pollers) ever sees an unrendered QR.
func (s *Synchronizer) Apply(inst *store.Instance, st *gateway.Status) (*Result, error) {
	qr := gateway.NormalizeQR(st.QRCode)
	state := NormalizeState(st.State, qr != "")
	if err := s.db.ApplyStatus(inst.ID, state, qr, st.Phone, st.ProfileName); err != nil {
		return nil, fmt.Errorf("apply status: %w", err)
	}

	res := &Result{InstanceID: inst.ID, State: state}
	if state != store.StateOpen {
		res.QRCode = qr
	}

	s.bus.Emit(bus.KindInstanceSynced, inst.ID, string(state))
	if state == store.StateOpen && inst.ConnectionState != store.StateOpen {
		s.logger.Info("instance connected",
			zap.String("instance_id", inst.ID),
			zap.String("phone", st.Phone),
			zap.String("profile_name", st.ProfileName))
		s.bus.Emit(bus.KindInstanceConnected, inst.ID, st.Phone)
	}
	return res, nil
}

// SyncAll reconciles a set of instances concurrently over the worker
// pool. An empty owner means every instance.
func (s *Synchronizer) SyncAll(ctx context.Context, owner string) (*Aggregate, error) {
	instances, err := s.db.ListInstances(owner)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	agg := &Aggregate{
		Results: make(map[string]*Result, len(instances)),
		Errors:  make(map[string]string),
	}

	var mu stdsync.Mutex
	var wg stdsync.WaitGroup
	for _, inst := range instances {
		id := inst.ID
		wg.Add(1)
		task := func() {
			defer wg.Done()
			res, err := s.Sync(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				agg.Failed++
				agg.Errors[id] = err.Error()
				return
			}
			agg.Synced++
			agg.Results[id] = res
			if res.NotFound {
				agg.NotFound++
			}
			if res.State == store.StateOpen {
				agg.Open++
			}
		}
		if err := s.pool.Submit(task); err != nil {
			// Pool unavailable (shutdown); run inline so the batch still completes.
			task()
		}
	}
	wg.Wait()

	s.logger.Info("sync all finished",
		zap.Int("synced", agg.Synced),
		zap.Int("open", agg.Open),
		zap.Int("not_found", agg.NotFound),
		zap.Int("failed", agg.Failed))
	return agg, nil
}

// NormalizeState maps the automation service's loose status vocabulary
// onto the persisted connection states. Local state never claims open
// without the remote saying so.
func NormalizeState(remote string, hasQR bool) store.State {
	switch strings.ToLower(remote) {
	case "open", "connected", "ready":
		return store.StateOpen
	case "close", "closed", "logout", "logged_out":
		return store.StateClosed
	case "disconnected", "destroyed", "not_found":
		return store.StateDisconnected
	case "created":
		return store.StateCreated
	default:
		// connecting, initializing, pending, qr_generated, unknown...
		if hasQR {
			return store.StateWaitingScan
		}
		return store.StateConnecting
	}
}
