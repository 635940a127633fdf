package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("instance.", 10)
	defer unsub()

	b.Emit(KindInstanceQRReady, "inst-1", "qr-payload")

	select {
	case evt := <-ch:
		if evt.Kind != KindInstanceQRReady {
			t.Errorf("kind = %q, want %q", evt.Kind, KindInstanceQRReady)
		}
		if evt.InstanceID != "inst-1" {
			t.Errorf("instance id = %q, want inst-1", evt.InstanceID)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	instCh, unsub1 := b.Subscribe("instance.", 10)
	defer unsub1()
	allCh, unsub2 := b.Subscribe("", 10)
	defer unsub2()

	b.Emit("daemon.started", "", nil)

	select {
	case <-allCh:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber did not receive event")
	}

	select {
	case evt := <-instCh:
		t.Errorf("instance subscriber received %q, want nothing", evt.Kind)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("instance.", 10)
	unsub()
	unsub() // safe to call twice

	b.Emit(KindInstanceConnected, "inst-1", nil)

	// The closed channel ends range loops; no event may arrive first.
	select {
	case evt, open := <-ch:
		if open {
			t.Errorf("received %q after unsubscribe", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed by unsubscribe")
	}
}

func TestUnsubscribeTerminatesRangeLoop(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("instance.", 10)

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	b.Emit(KindInstanceSynced, "inst-1", nil)
	unsub()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("range loop still blocked after unsubscribe")
	}
}

func TestFullSubscriberDropsEvent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("instance.", 1)
	defer unsub()

	b.Emit(KindInstanceSynced, "a", nil)
	b.Emit(KindInstanceSynced, "b", nil)

	// First event delivered, second dropped; publish must not block.
	evt := <-ch
	if evt.InstanceID != "a" {
		t.Errorf("instance id = %q, want a", evt.InstanceID)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event for %q", evt.InstanceID)
	default:
	}
}
