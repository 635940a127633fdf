// Package manager owns the instance lifecycle ends: creation with
// remote name-collision retries, deletion with remote cleanup, and the
// sweep of stale creations that never connected.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ticlin/walink/internal/bus"
	"github.com/ticlin/walink/internal/connect"
	"github.com/ticlin/walink/internal/gateway"
	"github.com/ticlin/walink/internal/naming"
	"github.com/ticlin/walink/internal/store"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the instance id has no local record.
var ErrNotFound = errors.New("instance not found")

// Gateway is the slice of the remote client the manager needs.
type Gateway interface {
	CreateInstance(ctx context.Context, name string) (*gateway.CreateResult, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Manager creates and deletes instances.
type Manager struct {
	db         *store.DB
	gw         Gateway
	drivers    *connect.Drivers
	bus        *bus.Bus
	staleAfter time.Duration
	logger     *zap.Logger
}

// New creates the manager.
func New(db *store.DB, gw Gateway, drivers *connect.Drivers, b *bus.Bus, staleAfter time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		db:         db,
		gw:         gw,
		drivers:    drivers,
		bus:        b,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Create provisions a remote session and the local record for it. The
// name is derived from the owner identifier; remote collisions retry
// with the next suffix up to the candidate bound, then fail listing the
// names that were tried. The record starts in connecting, or
// waiting_scan when the create response already carries a QR code.
func (m *Manager) Create(ctx context.Context, owner string) (*store.Instance, error) {
	taken, err := m.db.ListNames(owner)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}

	var res *gateway.CreateResult
	var tried []string
	for _, name := range naming.Candidates(owner, taken) {
		res, err = m.gw.CreateInstance(ctx, name)
		if err == nil {
			break
		}
		var collision *gateway.NameCollisionError
		if errors.As(err, &collision) {
			m.logger.Info("instance name taken remotely, trying next",
				zap.String("owner", owner),
				zap.String("name", name))
			tried = append(tried, name)
			res = nil
			continue
		}
		return nil, err
	}
	if res == nil {
		return nil, &naming.ExhaustedError{Tried: tried}
	}

	sessionID := res.SessionID
	if sessionID == "" {
		sessionID = res.Name
	}
	qr := gateway.NormalizeQR(res.QRCode)
	state := store.StateConnecting
	if qr != "" {
		state = store.StateWaitingScan
	}

	inst := &store.Instance{
		ID:              uuid.NewString(),
		Owner:           owner,
		Name:            res.Name,
		RemoteSessionID: sessionID,
		ConnectionState: state,
		QRCode:          qr,
	}
	if err := m.db.InsertInstance(inst); err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}

	m.logger.Info("instance created",
		zap.String("instance_id", inst.ID),
		zap.String("owner", owner),
		zap.String("name", inst.Name),
		zap.String("state", string(state)))
	m.bus.Emit(bus.KindInstanceCreated, inst.ID, inst.Name)
	return inst, nil
}

// Delete stops any active poller, tears the remote session down and
// removes the local record. The local record is removed even when the
// remote cleanup fails: a session already gone counts as success, and a
// transient remote failure is logged and left to the remote's own
// expiry rather than blocking the user.
func (m *Manager) Delete(ctx context.Context, instanceID string) error {
	inst, err := m.db.GetInstance(instanceID)
	if err != nil {
		return fmt.Errorf("load instance: %w", err)
	}
	if inst == nil {
		return ErrNotFound
	}

	if m.drivers != nil {
		m.drivers.Forget(instanceID)
	}

	if err := m.gw.DeleteSession(ctx, inst.RemoteSessionID); err != nil {
		if errors.Is(err, gateway.ErrSessionNotFound) {
			m.logger.Debug("remote session already gone",
				zap.String("instance_id", instanceID))
		} else {
			m.logger.Warn("remote session cleanup failed, removing local record anyway",
				zap.String("instance_id", instanceID),
				zap.Error(err))
		}
	}

	if err := m.db.DeleteInstance(instanceID); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	m.logger.Info("instance deleted",
		zap.String("instance_id", instanceID),
		zap.String("name", inst.Name))
	m.bus.Emit(bus.KindInstanceDeleted, instanceID, inst.Name)
	return nil
}

// SweepStale deletes instances stuck in a pre-open state longer than the
// configured window. Creations the user abandoned before scanning leave
// remote sessions behind; this reclaims them.
func (m *Manager) SweepStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.staleAfter).UnixMilli()
	stale, err := m.db.ListStale(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale: %w", err)
	}

	removed := 0
	for _, inst := range stale {
		if err := m.Delete(ctx, inst.ID); err != nil {
			m.logger.Warn("stale sweep skipped instance",
				zap.String("instance_id", inst.ID),
				zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
