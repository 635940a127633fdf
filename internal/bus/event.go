package bus

import "time"

// Event represents a domain event published on the bus.
// InstanceID is set on instance-scoped events so subscribers (and the
// SSE feed) can filter without inspecting the payload.
type Event struct {
	Kind       string
	InstanceID string
	Timestamp  time.Time
	Payload    any
}

// Instance-scoped event kinds emitted by the connection lifecycle.
const (
	KindInstanceCreated   = "instance.created"
	KindInstanceDeleted   = "instance.deleted"
	KindInstanceQRReady   = "instance.qr_ready"
	KindInstanceConnected = "instance.connected"
	KindInstanceSynced    = "instance.synced"
	KindInstanceNotFound  = "instance.not_found"
	KindInstanceError     = "instance.error"
	KindPollTimeout       = "instance.poll_timeout"
)
