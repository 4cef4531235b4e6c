package pktdelay

//
// Engine Controller: owns the diversion handle, the two worker
// goroutines, and the buffer; exposes Start/Stop/UpdateDelay; publishes
// status and error events; enforces shutdown ordering.
//

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
)

// engineState is the Engine's lifecycle state.
type engineState int

const (
	engineIdle engineState = iota
	engineRunning
)

// MinDelayMs and MaxDelayMs bound the accepted delay_ms range.
const (
	MinDelayMs = 0
	MaxDelayMs = 1000
)

// SendErrorReportLimit is how many consecutive send errors the
// Release Worker reports via OnError before going quiet, to avoid
// flooding subscribers. Kept as a package-level variable rather than
// a hard-coded constant because the threshold is inherently arbitrary.
var SendErrorReportLimit = 3

// SendErrorThreshold is the consecutive-send-error count at which the
// Release Worker logs (but does not act on) a warning that re-injection
// is persistently failing. The engine never self-terminates on send
// errors; only the embedding controller decides whether to stop.
var SendErrorThreshold = 10

// joinTimeout and joinRetryTimeout bound how long Stop waits for each
// worker to exit before giving up and moving on; see Stop for the
// two-phase discipline.
var (
	joinTimeout      = 5 * time.Second
	joinRetryTimeout = 2 * time.Second
)

// drainWindow is the interval Stop waits after both workers have
// joined, before closing the handle, to let any diversion-library
// completion callbacks still in flight settle. See the "shutdown-race"
// design note.
var drainWindow = 2 * time.Second

// ErrAlreadyRunning is returned by Start when the engine is not Idle.
var ErrAlreadyRunning = fmt.Errorf("pktdelay: engine already running")

// ErrInvalidDelay is returned by Start and UpdateDelay when delayMs is
// outside [MinDelayMs, MaxDelayMs].
var ErrInvalidDelay = fmt.Errorf("pktdelay: delay_ms out of range [%d, %d]", MinDelayMs, MaxDelayMs)

// Engine is the delay core's controller. The zero value is invalid;
// use [NewEngine] to construct.
type Engine struct {
	// mu serializes Start, Stop, and the state transitions they make.
	// It is held for the whole of each call, including opening,
	// shutting down and closing the handle, the worker joins, and the
	// drain window.
	mu    sync.Mutex
	state engineState

	// newHandle opens a fresh [DiversionHandle] with whatever filter,
	// layer, priority, and flags the embedder has baked into the
	// closure (see divert_windows.go's OpenWindowsDivert). MANDATORY.
	newHandle func() (DiversionHandle, error)

	// logger receives ambient log messages; it is distinct from the
	// OnStatus/OnError event surface consumed by an embedding UI.
	logger Logger

	// name identifies this instance in ambient log messages; it never
	// appears in the published status/error event text.
	name string

	handle DiversionHandle
	buffer *Buffer

	// captureDone and releaseDone are closed by their respective
	// worker goroutines on exit. Each Start creates fresh channels, so
	// Stop can join and time out on each worker independently instead
	// of sharing a single completion signal.
	captureDone chan struct{}
	releaseDone chan struct{}

	running atomic.Bool
	delayMs atomic.Int64

	sendSuccesses         atomic.Int64
	sendErrorsConsecutive atomic.Int32

	subsMu     sync.Mutex
	disposed   atomic.Bool
	statusSubs []func(string)
	errorSubs  []func(string)
}

// NewEngine creates an Idle [Engine]. newHandle is called once per
// Start to open the diversion handle; logger may be nil, in which
// case github.com/apex/log's global logger is used.
func NewEngine(newHandle func() (DiversionHandle, error), logger Logger) *Engine {
	if logger == nil {
		logger = log.Log
	}
	return &Engine{
		newHandle: newHandle,
		logger:    logger,
		name:      newEngineName(),
		buffer:    NewBuffer(),
	}
}

func (e *Engine) logf() Logger {
	return e.logger
}

// IsRunning reports whether the engine is currently Running.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// CurrentDelay returns the delay_ms currently applied to newly
// captured packets.
func (e *Engine) CurrentDelay() int {
	return int(e.delayMs.Load())
}

// QueuedPacketCount returns the number of packets currently held in
// the buffer, awaiting release. Safe to sample at any rate; the
// external UI is expected to poll it at roughly 10 Hz.
func (e *Engine) QueuedPacketCount() int {
	return e.buffer.Len()
}

// Start transitions the engine from Idle to Running with the given
// one-way delay in milliseconds. Returns ErrInvalidDelay if delayMs is
// out of range, or the error from opening the diversion handle
// (typically a missing-administrator-rights condition).
func (e *Engine) Start(delayMs int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == engineRunning {
		return ErrAlreadyRunning
	}
	if delayMs < MinDelayMs || delayMs > MaxDelayMs {
		return ErrInvalidDelay
	}

	e.delayMs.Store(int64(delayMs))

	if err := RaiseResolution(); err != nil {
		e.logf().Warnf("pktdelay: RaiseResolution: %s", err.Error())
	}

	handle, err := e.newHandle()
	if err != nil {
		msg := fmt.Sprintf(
			"failed to open the diversion handle: %s (try running as Administrator)",
			err.Error(),
		)
		e.emitError("handle-open-failed", msg)
		// unwind the timer-resolution raise since we never reach Running
		if lerr := LowerResolution(); lerr != nil {
			e.logf().Warnf("pktdelay: LowerResolution: %s", lerr.Error())
		}
		return err
	}
	e.handle = handle

	e.running.Store(true)
	e.buffer.Clear(e.releaseCapturedPayload)
	e.sendErrorsConsecutive.Store(0)

	e.logf().Infof("pktdelay: %s up", e.name)
	e.captureDone = make(chan struct{})
	e.releaseDone = make(chan struct{})
	go e.captureWorker()
	go e.releaseWorker()

	e.state = engineRunning
	e.emitStatus(fmt.Sprintf("Engine started with %dms delay.", delayMs))
	return nil
}

// Stop transitions the engine back to Idle, idempotently. It returns
// only once both workers are joined (or their join has timed out) and
// the diversion handle is closed. Calling Stop on an Idle engine is a
// silent no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != engineRunning {
		return
	}

	e.running.Store(false)

	if err := e.handle.Shutdown(true); err != nil {
		e.logf().Debugf("pktdelay: handle.Shutdown: %s", err.Error())
	}

	e.joinWorker("capture", e.captureDone)
	e.joinWorker("release", e.releaseDone)

	// Drain window: completion callbacks from overlapped I/O inside
	// the diversion library may still fire briefly after the workers
	// have exited their loops. Closing the handle before they settle
	// risks a use-after-close inside the library, not inside Go.
	time.Sleep(drainWindow)

	if err := e.handle.Close(); err != nil {
		e.logf().Warnf("pktdelay: handle.Close: %s", err.Error())
	}
	e.handle = nil

	e.buffer.Clear(e.releaseCapturedPayload)

	if err := LowerResolution(); err != nil {
		e.logf().Warnf("pktdelay: LowerResolution: %s", err.Error())
	}

	e.state = engineIdle
	e.logf().Infof("pktdelay: %s down", e.name)
	e.emitStatus("Engine stopped.")
}

// joinWorker waits for the named worker's done channel with a 5s
// timeout, then re-issues the handle shutdown and waits a further 2s.
// Go offers no way to forcibly interrupt a goroutine blocked in
// foreign I/O, so the "interrupt and retry" step from the design is
// this second shutdown nudge plus an extended deadline, not a true
// kill. Each worker has its own done channel, so a stuck capture
// worker cannot make the release worker's join falsely appear stuck
// too, and vice versa.
func (e *Engine) joinWorker(name string, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-time.After(joinTimeout):
		e.logf().Warnf("pktdelay: %s worker did not join within %s, retrying", name, joinTimeout)
	}

	if err := e.handle.Shutdown(true); err != nil {
		e.logf().Debugf("pktdelay: handle.Shutdown (retry): %s", err.Error())
	}

	select {
	case <-done:
	case <-time.After(joinRetryTimeout):
		e.logf().Warnf("pktdelay: %s worker still not joined after retry, proceeding anyway", name)
	}
}

// UpdateDelay atomically changes the delay applied to packets
// captured from now on. Packets already queued keep their original
// release deadline. No restart is performed.
func (e *Engine) UpdateDelay(delayMs int) error {
	if delayMs < MinDelayMs || delayMs > MaxDelayMs {
		return ErrInvalidDelay
	}
	e.delayMs.Store(int64(delayMs))
	e.emitStatus(fmt.Sprintf("Delay updated to %dms.", delayMs))
	return nil
}

// releaseCapturedPayload is passed to Buffer.Clear when unwinding. In
// the engine's native origins a packet's payload is a buffer owned by
// the diversion library that must be explicitly freed; Go's garbage
// collector reclaims DelayedPacket.Payload on its own once the buffer
// drops its last reference, so this hook only needs to account for
// the drop, not perform a release call.
func (e *Engine) releaseCapturedPayload(p *DelayedPacket) {
	e.logf().Debugf("pktdelay: dropping queued packet (%d bytes) on clear", len(p.Payload))
}
