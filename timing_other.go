//go:build !windows

package pktdelay

//
// Portable timing backend used for unit tests and non-Windows builds.
// There is no QueryPerformanceCounter or multimedia timer outside
// Windows, so Now is backed by time.Now's monotonic reading and the
// resolution raise/lower calls are no-ops that still participate in
// the reference count, keeping the Idle/Running invariants testable
// off Windows.
//

import "time"

var timingOrigin = time.Now()

func platformFrequency() int64 {
	return int64(time.Second)
}

func platformNow() Tick {
	return Tick(time.Since(timingOrigin))
}

func platformRaiseResolution() error {
	return nil
}

func platformLowerResolution() error {
	return nil
}
