//go:build !windows

package pktdelay

// raiseThreadPriority is a no-op outside Windows: there is no portable
// equivalent of THREAD_PRIORITY_TIME_CRITICAL, and the worker loops
// behave correctly (just with more jitter exposure) without it.
func raiseThreadPriority() {
}
