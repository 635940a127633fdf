package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAttemptBudgetEndsInTimeout(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 3, Interval: 10 * time.Millisecond, Timeout: time.Minute})

	var calls atomic.Int32
	var outcome atomic.Int32
	outcome.Store(-1)

	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		calls.Add(1)
		return Continue
	}, func(o Outcome) {
		outcome.Store(int32(o))
	})

	waitFor(t, func() bool { return outcome.Load() != -1 })
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want exactly 3", calls.Load())
	}
	if Outcome(outcome.Load()) != OutcomeTimeout {
		t.Errorf("outcome = %d, want OutcomeTimeout", outcome.Load())
	}
	if r.Running() {
		t.Error("runner still running after timeout")
	}
}

func TestDoneStopsAtExactAttempt(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 10, Interval: 10 * time.Millisecond, Timeout: time.Minute})

	var calls atomic.Int32
	done := make(chan Outcome, 1)

	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		calls.Add(1)
		if attempt == 3 {
			return Done
		}
		return Continue
	}, func(o Outcome) { done <- o })

	select {
	case o := <-done:
		if o != OutcomeDone {
			t.Errorf("outcome = %d, want OutcomeDone", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not finish")
	}

	// No attempt 4 may be issued after success.
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want exactly 3", calls.Load())
	}
}

func TestDoubleStartCollapses(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 100, Interval: 5 * time.Millisecond, Timeout: time.Minute})
	defer r.Stop()

	started := make(chan struct{})
	var once sync.Once

	ok1 := r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		once.Do(func() { close(started) })
		return Continue
	}, nil)
	ok2 := r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		t.Error("second loop must not run")
		return Failed
	}, nil)

	if !ok1 || ok2 {
		t.Errorf("Start results = %v, %v; want true, false", ok1, ok2)
	}
	<-started
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 10, Interval: 5 * time.Millisecond, Timeout: time.Minute})

	inTick := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		close(inTick)
		<-release
		return Done
	}, func(o Outcome) { finished.Store(true) })

	<-inTick
	r.Stop()
	close(release)

	time.Sleep(50 * time.Millisecond)
	if finished.Load() {
		t.Error("finish callback fired after Stop")
	}
	if r.Running() {
		t.Error("runner reports running after Stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 10, Interval: 5 * time.Millisecond, Timeout: time.Minute})
	r.Stop() // idle stop is a no-op
	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		return Continue
	}, nil)
	r.Stop()
	r.Stop()
}

func TestRestartAfterFinish(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 1, Interval: 5 * time.Millisecond, Timeout: time.Minute})

	done := make(chan Outcome, 1)
	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		return Done
	}, func(o Outcome) { done <- o })
	<-done

	if ok := r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		return Done
	}, func(o Outcome) { done <- o }); !ok {
		t.Fatal("Start after finish should succeed")
	}
	<-done
}

func TestWallClockTimeout(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 1000, Interval: 10 * time.Millisecond, Timeout: 35 * time.Millisecond})

	done := make(chan Outcome, 1)
	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		return Continue
	}, func(o Outcome) { done <- o })

	select {
	case o := <-done:
		if o != OutcomeTimeout {
			t.Errorf("outcome = %d, want OutcomeTimeout", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wall-clock timeout did not fire")
	}
}

func TestFailedOutcome(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 10, Interval: 5 * time.Millisecond, Timeout: time.Minute})

	done := make(chan Outcome, 1)
	r.Start(context.Background(), func(ctx context.Context, attempt int) Verdict {
		return Failed
	}, func(o Outcome) { done <- o })

	if o := <-done; o != OutcomeFailed {
		t.Errorf("outcome = %d, want OutcomeFailed", o)
	}
}
