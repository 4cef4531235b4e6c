package pktdelay

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// nullLogger is a [Logger] that discards every message, used so test
// output stays focused on assertions rather than engine chatter.
type nullLogger struct{}

func (nullLogger) Debug(string)           {}
func (nullLogger) Debugf(string, ...any)  {}
func (nullLogger) Info(string)            {}
func (nullLogger) Infof(string, ...any)   {}
func (nullLogger) Warn(string)            {}
func (nullLogger) Warnf(string, ...any)   {}

var _ Logger = nullLogger{}

// withFastShutdown shrinks the Stop() timing windows for the duration
// of a test, so the suite does not spend real wall-clock time on the
// production drain/retry budget.
func withFastShutdown(t *testing.T) {
	savedJoin, savedRetry, savedDrain := joinTimeout, joinRetryTimeout, drainWindow
	joinTimeout = 200 * time.Millisecond
	joinRetryTimeout = 50 * time.Millisecond
	drainWindow = 10 * time.Millisecond
	t.Cleanup(func() {
		joinTimeout, joinRetryTimeout, drainWindow = savedJoin, savedRetry, savedDrain
	})
}

func newTestEngine(t *testing.T) (*Engine, *mockHandle) {
	withFastShutdown(t)
	h := newMockHandle()
	e := NewEngine(func() (DiversionHandle, error) { return h, nil }, nullLogger{})
	t.Cleanup(e.Stop)
	return e, h
}

func TestEngineQuietStartStop(t *testing.T) {
	e, _ := newTestEngine(t)

	var statuses []string
	e.OnStatus(func(s string) { statuses = append(statuses, s) })

	if err := e.Start(50); err != nil {
		t.Fatal(err)
	}
	if !e.IsRunning() {
		t.Fatal("expected engine to be running")
	}
	if e.CurrentDelay() != 50 {
		t.Fatalf("expected delay 50, got %d", e.CurrentDelay())
	}

	e.Stop()
	if e.IsRunning() {
		t.Fatal("expected engine to be idle after Stop")
	}

	want := []string{"Engine started with 50ms delay.", "Engine stopped."}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Fatalf("unexpected status sequence:\n%s", diff)
	}

	// Stop is idempotent
	e.Stop()
}

func TestEngineSinglePacketDelay(t *testing.T) {
	e, h := newTestEngine(t)

	const delayMs = 100
	if err := e.Start(delayMs); err != nil {
		t.Fatal(err)
	}

	t0 := time.Now()
	h.emit([]byte("hello"), mockAddr{"a"})

	select {
	case f := <-h.out:
		elapsed := time.Since(t0)
		if elapsed < delayMs*time.Millisecond/2 {
			t.Fatalf("packet released too early: %s", elapsed)
		}
		if string(f.payload) != "hello" {
			t.Fatalf("unexpected payload: %q", f.payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delayed packet")
	}
}

func TestEngineFIFOPreservedAtEqualDeadlines(t *testing.T) {
	e, h := newTestEngine(t)

	if err := e.Start(20); err != nil {
		t.Fatal(err)
	}

	h.emit([]byte("first"), mockAddr{"a"})
	h.emit([]byte("second"), mockAddr{"a"})
	h.emit([]byte("third"), mockAddr{"a"})

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case f := <-h.out:
			got = append(got, string(f.payload))
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for packets")
		}
	}

	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FIFO order violated:\n%s", diff)
	}
}

func TestEngineUpdateDelayMidRun(t *testing.T) {
	e, h := newTestEngine(t)

	if err := e.Start(500); err != nil {
		t.Fatal(err)
	}

	h.emit([]byte("slow"), mockAddr{"a"})
	time.Sleep(20 * time.Millisecond)

	if err := e.UpdateDelay(0); err != nil {
		t.Fatal(err)
	}
	if e.CurrentDelay() != 0 {
		t.Fatalf("expected delay 0, got %d", e.CurrentDelay())
	}

	h.emit([]byte("fast"), mockAddr{"a"})

	// the fast-path packet, captured after the update, should arrive
	// well before the already-queued slow packet's 500ms deadline.
	select {
	case f := <-h.out:
		if string(f.payload) != "fast" {
			t.Fatalf("expected fast-path packet first, got %q", f.payload)
		}
	case <-time.After(400 * time.Millisecond):
		t.Fatal("fast-path packet did not arrive promptly")
	}

	select {
	case f := <-h.out:
		if string(f.payload) != "slow" {
			t.Fatalf("expected slow packet second, got %q", f.payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("previously-queued packet never released")
	}
}

func TestEngineZeroDelayFastPath(t *testing.T) {
	e, h := newTestEngine(t)

	if err := e.Start(0); err != nil {
		t.Fatal(err)
	}

	t0 := time.Now()
	h.emit([]byte("immediate"), mockAddr{"a"})

	select {
	case f := <-h.out:
		if time.Since(t0) > 200*time.Millisecond {
			t.Fatalf("fast path took too long: %s", time.Since(t0))
		}
		if string(f.payload) != "immediate" {
			t.Fatalf("unexpected payload: %q", f.payload)
		}
	case <-time.After(time.Second):
		t.Fatal("fast-path packet never arrived")
	}

	if e.QueuedPacketCount() != 0 {
		t.Fatalf("expected empty buffer on the fast path, got %d", e.QueuedPacketCount())
	}
}

func TestEngineStopWithBacklog(t *testing.T) {
	e, h := newTestEngine(t)

	if err := e.Start(MaxDelayMs); err != nil {
		t.Fatal(err)
	}

	h.emit([]byte("one"), mockAddr{"a"})
	h.emit([]byte("two"), mockAddr{"a"})
	time.Sleep(20 * time.Millisecond)

	if e.QueuedPacketCount() == 0 {
		t.Fatal("expected packets to be queued before Stop")
	}

	e.Stop()
	if e.IsRunning() {
		t.Fatal("expected engine to be idle")
	}
	if e.QueuedPacketCount() != 0 {
		t.Fatalf("expected buffer drained after Stop, got %d", e.QueuedPacketCount())
	}

	// the queued-but-undelivered packets must not have been sent
	select {
	case f := <-h.out:
		t.Fatalf("unexpected delivery of backlogged packet: %q", f.payload)
	default:
	}
}

func TestEngineRejectsInvalidDelay(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.Start(-1); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("expected ErrInvalidDelay, got %v", err)
	}
	if err := e.Start(MaxDelayMs + 1); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("expected ErrInvalidDelay, got %v", err)
	}

	if err := e.Start(10); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(10); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := e.UpdateDelay(MaxDelayMs + 1); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("expected ErrInvalidDelay from UpdateDelay, got %v", err)
	}
}

func TestEngineSendErrorsReportedAndCapped(t *testing.T) {
	e, h := newTestEngine(t)
	h.sendErr = errors.New("injected failure")

	var errs []string
	e.OnError(func(s string) { errs = append(errs, s) })

	if err := e.Start(5); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < SendErrorThreshold+5; i++ {
		h.emit([]byte("x"), mockAddr{"a"})
	}

	deadline := time.After(5 * time.Second)
	for {
		if len(errs) >= SendErrorReportLimit {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected at least %d reported send errors, got %d", SendErrorReportLimit, len(errs))
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(errs) > SendErrorReportLimit {
		t.Fatalf("expected send-error reports to be capped at %d, got %d", SendErrorReportLimit, len(errs))
	}
}
