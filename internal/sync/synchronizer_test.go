package sync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ticlin/walink/internal/bus"
	"github.com/ticlin/walink/internal/gateway"
	"github.com/ticlin/walink/internal/store"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu       stdsync.Mutex
	statuses map[string]*gateway.Status
	errs     map[string]error
	calls    int
}

func (f *fakeGateway) SessionStatus(_ context.Context, sessionID string) (*gateway.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[sessionID]; ok {
		return nil, err
	}
	if st, ok := f.statuses[sessionID]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, gateway.ErrSessionNotFound
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedInstance(t *testing.T, db *store.DB, name string, state store.State) *store.Instance {
	t.Helper()
	inst := &store.Instance{
		ID:              uuid.NewString(),
		Owner:           "acct-1",
		Name:            name,
		RemoteSessionID: "sess-" + name,
		ConnectionState: state,
	}
	if err := db.InsertInstance(inst); err != nil {
		t.Fatal(err)
	}
	return inst
}

func newSyncer(t *testing.T, db *store.DB, gw StatusReader, b *bus.Bus) *Synchronizer {
	t.Helper()
	if b == nil {
		b = bus.New()
	}
	s, err := NewSynchronizer(db, gw, b, 4, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSyncOpenClearsQRAndStoresProfile(t *testing.T) {
	db := testDB(t)
	inst := seedInstance(t, db, "alice", store.StateWaitingScan)
	gw := &fakeGateway{statuses: map[string]*gateway.Status{
		inst.RemoteSessionID: {State: "open", Phone: "5511999", ProfileName: "Alice"},
	}}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindInstanceConnected, 10)
	defer unsub()

	s := newSyncer(t, db, gw, b)
	res, err := s.Sync(context.Background(), inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != store.StateOpen {
		t.Errorf("state = %s, want open", res.State)
	}

	got, _ := db.GetInstance(inst.ID)
	if got.ConnectionState != store.StateOpen || got.QRCode != "" {
		t.Errorf("persisted state/qr = %s/%q", got.ConnectionState, got.QRCode)
	}
	if got.Phone != "5511999" {
		t.Errorf("phone = %q", got.Phone)
	}

	select {
	case evt := <-ch:
		if evt.InstanceID != inst.ID {
			t.Errorf("connected event for %q", evt.InstanceID)
		}
	default:
		t.Error("no connected event published")
	}
}

func TestSyncQRMapsToWaitingScan(t *testing.T) {
	db := testDB(t)
	inst := seedInstance(t, db, "alice", store.StateConnecting)
	gw := &fakeGateway{statuses: map[string]*gateway.Status{
		inst.RemoteSessionID: {State: "connecting", QRCode: "data:image/png;base64,QQ"},
	}}

	s := newSyncer(t, db, gw, nil)
	res, err := s.Sync(context.Background(), inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != store.StateWaitingScan || res.QRCode == "" {
		t.Errorf("result = %+v", res)
	}
	got, _ := db.GetInstance(inst.ID)
	if got.ConnectionState != store.StateWaitingScan || got.QRCode == "" {
		t.Errorf("persisted = %s/%q", got.ConnectionState, got.QRCode)
	}
}

func TestSyncRendersRawQRBeforeStoring(t *testing.T) {
	db := testDB(t)
	inst := seedInstance(t, db, "alice", store.StateConnecting)
	gw := &fakeGateway{statuses: map[string]*gateway.Status{
		inst.RemoteSessionID: {State: "connecting", QRCode: "2@abc,def,ghi"},
	}}

	s := newSyncer(t, db, gw, nil)
	res, err := s.Sync(context.Background(), inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.QRCode, "data:image/png;base64,") {
		t.Errorf("result qr not rendered: %.40q", res.QRCode)
	}
	got, _ := db.GetInstance(inst.ID)
	if !strings.HasPrefix(got.QRCode, "data:image/png;base64,") {
		t.Errorf("persisted qr not rendered: %.40q", got.QRCode)
	}
}

func TestSyncTransientFailureLeavesStateUntouched(t *testing.T) {
	db := testDB(t)
	inst := seedInstance(t, db, "alice", store.StateWaitingScan)
	gw := &fakeGateway{errs: map[string]error{
		inst.RemoteSessionID: &gateway.RequestError{Op: "status", Status: 502},
	}}

	s := newSyncer(t, db, gw, nil)
	if _, err := s.Sync(context.Background(), inst.ID); err == nil {
		t.Fatal("expected error")
	}

	got, _ := db.GetInstance(inst.ID)
	if got.ConnectionState != store.StateWaitingScan {
		t.Errorf("state changed to %s on transient failure", got.ConnectionState)
	}
}

func TestSyncRemoteGoneForcesDisconnected(t *testing.T) {
	db := testDB(t)
	inst := seedInstance(t, db, "alice", store.StateOpen)
	gw := &fakeGateway{} // knows no sessions

	s := newSyncer(t, db, gw, nil)
	res, err := s.Sync(context.Background(), inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.NotFound || res.State != store.StateDisconnected {
		t.Errorf("result = %+v, want NotFound disconnected", res)
	}
	got, _ := db.GetInstance(inst.ID)
	if got.ConnectionState != store.StateDisconnected {
		t.Errorf("persisted state = %s", got.ConnectionState)
	}
}

func TestSyncUnknownInstance(t *testing.T) {
	db := testDB(t)
	s := newSyncer(t, db, &fakeGateway{}, nil)
	_, err := s.Sync(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("err = %v, want ErrUnknownInstance", err)
	}
}

func TestSyncConcurrentConverges(t *testing.T) {
	db := testDB(t)
	inst := seedInstance(t, db, "alice", store.StateConnecting)
	gw := &fakeGateway{statuses: map[string]*gateway.Status{
		inst.RemoteSessionID: {State: "open", Phone: "5511999"},
	}}
	s := newSyncer(t, db, gw, nil)

	var wg stdsync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Sync(context.Background(), inst.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := db.GetInstance(inst.ID)
	if got.ConnectionState != store.StateOpen || got.Phone != "5511999" {
		t.Errorf("converged to %s/%q", got.ConnectionState, got.Phone)
	}
}

func TestSyncAllAggregatesWithoutAborting(t *testing.T) {
	db := testDB(t)
	ok := seedInstance(t, db, "alice", store.StateConnecting)
	bad := seedInstance(t, db, "bob", store.StateConnecting)
	gone := seedInstance(t, db, "carol", store.StateConnecting)

	gw := &fakeGateway{
		statuses: map[string]*gateway.Status{
			ok.RemoteSessionID: {State: "open"},
		},
		errs: map[string]error{
			bad.RemoteSessionID: &gateway.RequestError{Op: "status", Status: 500},
		},
	}
	_ = gone // absent from the fake: resolves as not found

	s := newSyncer(t, db, gw, nil)
	agg, err := s.SyncAll(context.Background(), "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if agg.Synced != 2 || agg.Failed != 1 || agg.Open != 1 || agg.NotFound != 1 {
		t.Errorf("aggregate = %+v", agg)
	}
	if _, found := agg.Errors[bad.ID]; !found {
		t.Error("failed instance missing from Errors")
	}
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		remote string
		hasQR  bool
		want   store.State
	}{
		{"open", false, store.StateOpen},
		{"Connected", false, store.StateOpen},
		{"ready", false, store.StateOpen},
		{"close", false, store.StateClosed},
		{"closed", false, store.StateClosed},
		{"disconnected", false, store.StateDisconnected},
		{"connecting", false, store.StateConnecting},
		{"connecting", true, store.StateWaitingScan},
		{"qr_generated", true, store.StateWaitingScan},
		{"", false, store.StateConnecting},
		{"something-new", true, store.StateWaitingScan},
	}
	for _, tt := range tests {
		if got := NormalizeState(tt.remote, tt.hasQR); got != tt.want {
			t.Errorf("NormalizeState(%q, %v) = %s, want %s", tt.remote, tt.hasQR, got, tt.want)
		}
	}
}
