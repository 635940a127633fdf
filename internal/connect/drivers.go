package connect

import (
	"github.com/ticlin/walink/internal/bus"
	"go.uber.org/zap"
)

// Drivers bundles the three pollers behind one facade so callers stop
// everything for an instance in one call, and so externally pushed
// connected events (webhook ingest) halt whatever loop is running.
type Drivers struct {
	QR      *QRPoller
	Waiter  *Waiter
	Checker *AutoChecker

	bus    *bus.Bus
	logger *zap.Logger
	unsub  func()
}

// NewDrivers creates the facade.
func NewDrivers(qr *QRPoller, w *Waiter, c *AutoChecker, b *bus.Bus, logger *zap.Logger) *Drivers {
	return &Drivers{QR: qr, Waiter: w, Checker: c, bus: b, logger: logger}
}

// Start runs the event loop that keeps the loops coherent: a
// webhook-confirmed connection cancels whatever still polls for the
// instance (a loop that observed the connection itself has already
// released its slot, so the stop is a no-op there), and a fresh creation
// or an exhausted QR poll hands the instance to the background checker.
func (d *Drivers) Start() {
	ch, unsub := d.bus.Subscribe("instance.", 64)
	d.unsub = unsub
	go func() {
		for evt := range ch {
			switch evt.Kind {
			case bus.KindInstanceConnected:
				d.logger.Debug("connected event, stopping drivers",
					zap.String("instance_id", evt.InstanceID))
				d.StopAll(evt.InstanceID)
			case bus.KindInstanceCreated, bus.KindPollTimeout:
				// Refused silently when another driver holds the slot.
				d.Checker.Start(evt.InstanceID)
			}
		}
	}()
}

// StopAll cancels every loop for the instance. Idempotent.
func (d *Drivers) StopAll(instanceID string) {
	d.QR.Stop(instanceID)
	d.Waiter.Cancel(instanceID)
	d.Checker.Stop(instanceID)
}

// Forget stops the loops and drops any retained session state, for
// instance deletion.
func (d *Drivers) Forget(instanceID string) {
	d.Waiter.Cancel(instanceID)
	d.Checker.Stop(instanceID)
	d.QR.Forget(instanceID)
}

// Close unsubscribes from the bus and stops the background checks.
func (d *Drivers) Close() {
	if d.unsub != nil {
		d.unsub()
	}
	d.Checker.StopAll()
}
