package pktdelay

//
// Release Worker: pops packets whose release deadline has passed,
// re-injects them via the diversion handle, and paces itself with the
// Timing Service's hybrid sleep so it neither busy-loops nor drifts.
//

import (
	"fmt"
	"runtime"
	"time"
)

// releaseWorker is the Release Worker loop.
func (e *Engine) releaseWorker() {
	defer close(e.releaseDone)
	defer func() {
		if r := recover(); r != nil {
			e.emitError("release-thread-fatal", fmt.Sprintf("release worker panic: %v", r))
		}
	}()

	runtime.LockOSThread()
	raiseThreadPriority()

	e.logf().Infof("pktdelay: release worker up")
	defer e.logf().Infof("pktdelay: release worker down")

	for e.running.Load() {
		p, ok := e.buffer.TryPeek()
		if !ok {
			// the buffer is empty: a real OS sleep here, not
			// PreciseSleep's hybrid spin, since there is no deadline to
			// hit precisely and spinning would burn a full core.
			time.Sleep(time.Millisecond)
			continue
		}

		delta := p.ReleaseAt - Now()
		if delta <= 0 {
			if p, ok = e.buffer.Dequeue(); ok {
				e.releasePacket(p)
			}
			continue
		}

		PreciseSleep(TicksToMs(delta))
	}
}

// releasePacket attempts re-injection of p, bookkeeping the
// consecutive-error counter. The payload is always considered
// released after this call, success or failure: Go's garbage
// collector reclaims it once the caller's last reference (this
// function) returns.
func (e *Engine) releasePacket(p *DelayedPacket) {
	if err := e.handle.Send(p.Payload, p.Addr); err != nil {
		e.reportSendError(err)
		return
	}
	e.sendSuccesses.Add(1)
	e.sendErrorsConsecutive.Store(0)
}

// reportSendError bumps the consecutive-error counter and reports the
// first SendErrorReportLimit occurrences since the last success, to
// avoid flooding subscribers during a sustained outage.
func (e *Engine) reportSendError(err error) {
	n := e.sendErrorsConsecutive.Add(1)
	switch {
	case int(n) <= SendErrorReportLimit:
		e.emitError("send-error", fmt.Sprintf("send failed (%d consecutive): %s", n, err.Error()))
	case int(n) == SendErrorThreshold:
		e.logf().Warnf("pktdelay: %d consecutive send errors, still retrying", n)
	}
}
