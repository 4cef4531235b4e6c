package pktdelay

//
// Data model
//

import (
	"context"
	"errors"
)

// Address is an opaque routing descriptor attached to a captured packet.
// The diversion handle requires it unchanged when re-injecting the
// packet; the engine never inspects it.
type Address any

// DelayedPacket is an owned record describing a captured packet waiting
// for its release deadline. The zero value is invalid; packets are
// always constructed by the Capture Worker.
type DelayedPacket struct {
	// Payload is the opaque packet bytes, owned by the diversion
	// library until released back to it.
	Payload []byte

	// Addr is the routing descriptor required to re-inject Payload.
	Addr Address

	// ReleaseAt is the tick at which this packet becomes eligible
	// for re-injection.
	ReleaseAt Tick

	// seq breaks ties between packets sharing a ReleaseAt, so that
	// intra-tick capture order survives the priority queue.
	seq uint64
}

// Logger is the logger used throughout the engine. Satisfied by
// github.com/apex/log's global logger.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// DiversionHandle is the kernel-assisted packet interception capability
// the engine consumes. It is implemented on Windows by binding the
// diversion driver's DLL and, for tests and non-Windows builds, by
// mocks that satisfy the same blocking contract.
type DiversionHandle interface {
	// Recv blocks until a packet is available, the handle is shut
	// down (in which case it returns ErrHandleClosed), or ctx is
	// canceled. A zero-length payload with a nil error means no
	// packet was available this round and the caller should retry.
	Recv(ctx context.Context) (payload []byte, addr Address, err error)

	// Send re-injects payload toward addr. Returns an error if the
	// handle has been shut down or the underlying driver rejects it.
	Send(payload []byte, addr Address) error

	// Shutdown unblocks any in-flight Recv/Send call, in the given
	// direction(s). It is safe to call more than once.
	Shutdown(both bool) error

	// Close releases the handle. Call only after Shutdown and after
	// the capture/release goroutines have been joined.
	Close() error
}

// ErrHandleClosed indicates that the diversion handle was shut down
// while a blocking operation was in flight. This is the expected
// cancellation path for the Capture Worker.
var ErrHandleClosed = errors.New("pktdelay: diversion handle closed")

// ErrPlatformUnsupported indicates that the real diversion handle was
// requested on a platform other than Windows.
var ErrPlatformUnsupported = errors.New("pktdelay: diversion handle requires Windows")
