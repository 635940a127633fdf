package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound marks a remote session that no longer exists. It is
// not retryable without recreating the instance; callers must surface the
// distinct not-found outcome instead of a plain timeout.
var ErrSessionNotFound = errors.New("remote session does not exist")

// NameCollisionError is returned by CreateInstance when the requested
// instance name is already taken on the automation service.
type NameCollisionError struct {
	Name string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("instance name %q already in use", e.Name)
}

// RequestError is a transient transport or remote failure. It counts
// against poll attempt budgets and is retryable.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: status %d", e.Op, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// messageLooksMissing matches the 404-style payloads the automation
// service returns for sessions it no longer knows, regardless of the
// HTTP status it chose to use.
func messageLooksMissing(msg string) bool {
	m := strings.ToLower(msg)
	for _, probe := range []string{"does not exist", "not exist", "not found", "não existe", "nao existe"} {
		if strings.Contains(m, probe) {
			return true
		}
	}
	return false
}

func messageLooksCollision(msg string) bool {
	m := strings.ToLower(msg)
	for _, probe := range []string{"already in use", "already exists", "in use", "já existe", "ja existe", "duplicate"} {
		if strings.Contains(m, probe) {
			return true
		}
	}
	return false
}
