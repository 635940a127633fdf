// Package connect hosts the pollers that drive an instance toward the
// open state: the QR polling state machine, the "already connected"
// waiter and the background auto checker. A shared registry guarantees
// at most one of them drives a given instance at any moment.
package connect

import "sync"

// Role identifies which poller currently drives an instance.
type Role string

const (
	RoleNone     Role = ""
	RolePolling  Role = "polling"
	RoleWaiting  Role = "waiting"
	RoleChecking Role = "checking"
)

// Registry tracks the active driver per instance id. It replaces the
// scattered boolean in-flight flags of the old frontend with one keyed
// state tag, so the one-driver invariant is checkable in one place.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]Role
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Role)}
}

// Acquire claims the driver slot for an instance. Returns false if any
// driver (including one of the same role) already holds it.
func (r *Registry) Acquire(instanceID string, role Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers[instanceID] != RoleNone {
		return false
	}
	r.drivers[instanceID] = role
	return true
}

// Release frees the slot, but only when held by the given role, so a
// late release from a finished poller cannot evict a newer driver.
func (r *Registry) Release(instanceID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers[instanceID] == role {
		delete(r.drivers, instanceID)
	}
}

// Driver returns the role currently holding the instance, if any.
func (r *Registry) Driver(instanceID string) Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drivers[instanceID]
}
