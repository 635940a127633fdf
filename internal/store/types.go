package store

// State is the persisted connection state of an instance. It is the
// single source of truth for UI rendering and for gating pollers.
type State string

const (
	StateCreated      State = "created"
	StateConnecting   State = "connecting"
	StateWaitingScan  State = "waiting_scan"
	StateOpen         State = "open"
	StateClosed       State = "closed"
	StateDisconnected State = "disconnected"
)

// Connected reports whether the state is the terminal success state.
func (s State) Connected() bool {
	return s == StateOpen
}

// PreOpen reports whether the instance is still working toward a
// connection (eligible for stale-creation cleanup).
func (s State) PreOpen() bool {
	switch s {
	case StateCreated, StateConnecting, StateWaitingScan:
		return true
	}
	return false
}

// Instance is one messaging-account attachment.
type Instance struct {
	ID              string
	Owner           string
	Name            string
	RemoteSessionID string
	ConnectionState State
	QRCode          string
	Phone           string
	ProfileName     string
	LastSyncedAt    int64
	CreatedAt       int64
	UpdatedAt       int64
}
