//go:build windows

package pktdelay

//
// Worker thread priority: raise the calling OS thread to the highest
// process-relative scheduling priority, following the same
// NewLazySystemDLL/NewProc binding idiom used for the diversion
// driver itself. Must be called after runtime.LockOSThread, on the
// goroutine whose OS thread should be elevated.
//

import "golang.org/x/sys/windows"

var (
	modkernel32           = windows.NewLazySystemDLL("kernel32.dll")
	procGetCurrentThread  = modkernel32.NewProc("GetCurrentThread")
	procSetThreadPriority = modkernel32.NewProc("SetThreadPriority")
)

// threadPriorityTimeCritical is THREAD_PRIORITY_TIME_CRITICAL.
const threadPriorityTimeCritical = 15

// raiseThreadPriority requests the highest scheduling priority for
// the calling OS thread. Errors are not fatal: a worker that fails to
// raise its priority still functions correctly, just with more
// exposure to preemption jitter.
func raiseThreadPriority() {
	thread, _, _ := procGetCurrentThread.Call()
	_, _, _ = procSetThreadPriority.Call(thread, uintptr(threadPriorityTimeCritical))
}
