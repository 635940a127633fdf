package connect

import (
	stdsync "sync"
	"testing"
	"time"

	"github.com/ticlin/walink/internal/store"
	intsync "github.com/ticlin/walink/internal/sync"
	"go.uber.org/zap"
)

func newTestWaiter(syncer Syncer, timeout time.Duration) (*Waiter, *Registry) {
	reg := NewRegistry()
	return NewWaiter(5*time.Millisecond, timeout, reg, syncer, zap.NewNop()), reg
}

func TestWaiterConnects(t *testing.T) {
	syncer := &scriptedSyncer{results: []*intsync.Result{
		{State: store.StateConnecting},
		{State: store.StateConnecting},
		{State: store.StateOpen},
	}}
	w, reg := newTestWaiter(syncer, time.Second)

	var connected stdsync.WaitGroup
	connected.Add(1)
	if !w.Start("i1", WaiterCallbacks{OnConnected: func() { connected.Done() }}) {
		t.Fatal("start refused")
	}
	connected.Wait()

	waitFor(t, func() bool { return !w.Active("i1") })
	if reg.Driver("i1") != RoleNone {
		t.Error("registry slot still held")
	}
}

func TestWaiterDeadlineElapses(t *testing.T) {
	syncer := &scriptedSyncer{results: []*intsync.Result{
		{State: store.StateConnecting},
	}}
	w, reg := newTestWaiter(syncer, 30*time.Millisecond)

	var timedOut stdsync.WaitGroup
	timedOut.Add(1)
	w.Start("i1", WaiterCallbacks{OnTimeout: func() { timedOut.Done() }})
	timedOut.Wait()

	if w.Active("i1") {
		t.Error("wait still active after deadline")
	}
	if reg.Driver("i1") != RoleNone {
		t.Error("registry slot still held after deadline")
	}
	if syncer.callCount() < 2 {
		t.Errorf("sync calls = %d, expected repeated attempts before the deadline", syncer.callCount())
	}
}

func TestWaiterRemoteGone(t *testing.T) {
	syncer := &scriptedSyncer{results: []*intsync.Result{
		{State: store.StateDisconnected, NotFound: true},
	}}
	w, _ := newTestWaiter(syncer, time.Second)

	var notFound stdsync.WaitGroup
	notFound.Add(1)
	w.Start("i1", WaiterCallbacks{OnNotFound: func() { notFound.Done() }})
	notFound.Wait()

	waitFor(t, func() bool { return !w.Active("i1") })
}

func TestWaiterRefusedWhenDriverActive(t *testing.T) {
	syncer := &scriptedSyncer{results: []*intsync.Result{
		{State: store.StateConnecting},
	}}
	w, reg := newTestWaiter(syncer, time.Second)

	reg.Acquire("i1", RolePolling)
	if w.Start("i1", WaiterCallbacks{}) {
		t.Error("wait started while the QR poller drives the instance")
	}
}

func TestWaiterCancel(t *testing.T) {
	syncer := &scriptedSyncer{results: []*intsync.Result{
		{State: store.StateConnecting},
	}}
	w, reg := newTestWaiter(syncer, time.Minute)

	w.Start("i1", WaiterCallbacks{
		OnTimeout: func() { t.Error("timeout fired after cancel") },
	})
	waitFor(t, func() bool { return syncer.callCount() >= 1 })

	w.Cancel("i1")
	w.Cancel("i1") // idempotent

	if w.Active("i1") {
		t.Error("wait still active after cancel")
	}
	if reg.Driver("i1") != RoleNone {
		t.Error("registry slot still held after cancel")
	}
}
