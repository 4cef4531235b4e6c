package pktdelay

//
// Capture Worker: blocks on the diversion handle, timestamps each
// packet, and either enqueues it for delayed release or, on the
// zero-delay fast path, re-injects it immediately without touching
// the buffer.
//

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// captureWorker is the Capture Worker loop. It runs until the
// diversion handle's Recv returns ErrHandleClosed (the expected
// cancellation path once Stop shuts the handle down) or any other
// receive error, at which point it reports the error once and
// returns, leaving the engine effectively stopped from the traffic
// side until an embedder calls Stop.
func (e *Engine) captureWorker() {
	defer close(e.captureDone)
	defer func() {
		if r := recover(); r != nil {
			e.emitError("capture-thread-fatal", fmt.Sprintf("capture worker panic: %v", r))
		}
	}()

	runtime.LockOSThread()
	raiseThreadPriority()

	e.logf().Infof("pktdelay: capture worker up")
	defer e.logf().Infof("pktdelay: capture worker down")

	ctx := context.Background()
	for e.running.Load() {
		payload, addr, err := e.handle.Recv(ctx)
		if err != nil {
			if !errors.Is(err, ErrHandleClosed) {
				e.emitError("capture-error", fmt.Sprintf("recv failed: %s", err.Error()))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		delayMs := e.delayMs.Load()
		if delayMs == 0 {
			// fast path: bypass the buffer entirely
			if err := e.handle.Send(payload, addr); err != nil && e.running.Load() {
				e.reportSendError(err)
			}
			continue
		}

		e.buffer.Enqueue(&DelayedPacket{
			Payload:   payload,
			Addr:      addr,
			ReleaseAt: Now() + MsToTicks(float64(delayMs)),
		})
	}
}
