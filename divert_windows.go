//go:build windows

package pktdelay

//
// Production DiversionHandle backed by the WinDivert driver's
// user-mode DLL. Bound the same low-level way the Wintun adapter
// referenced in this pack binds wintun.dll (LazyDLL + LazyProc +
// unsafe.Pointer syscalls), because there is no high-level Go wrapper
// for this driver available in our dependency graph.
//

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	winDivertShutdownRecv = 1
	winDivertShutdownSend = 2
	winDivertShutdownBoth = 3
)

var (
	modWinDivert          = windows.NewLazySystemDLL("WinDivert.dll")
	procWinDivertOpen     = modWinDivert.NewProc("WinDivertOpen")
	procWinDivertRecv     = modWinDivert.NewProc("WinDivertRecv")
	procWinDivertSend     = modWinDivert.NewProc("WinDivertSend")
	procWinDivertShutdown = modWinDivert.NewProc("WinDivertShutdown")
	procWinDivertClose    = modWinDivert.NewProc("WinDivertClose")
)

// winDivertAddress mirrors the fixed-size WINDIVERT_ADDRESS structure
// closely enough for our purposes: the engine never interprets its
// fields, it only round-trips the bytes the driver handed it back to
// the driver verbatim, consistent with Address being opaque.
type winDivertAddress [80]byte

// windowsDivertHandle is the production [DiversionHandle].
type windowsDivertHandle struct {
	handle windows.Handle

	closeOnce sync.Once
	closed    atomic.Bool

	recvBufSize int
}

// OpenWindowsDivert opens a WinDivert handle with the given filter
// (e.g. "true" to capture everything), layer, priority, and flags.
// Returns an error when the process lacks administrator rights or
// another process already holds the driver.
func OpenWindowsDivert(filter string, layer Layer, priority int16, flags uint64) (DiversionHandle, error) {
	filterPtr, err := windows.BytePtrFromString(filter)
	if err != nil {
		return nil, fmt.Errorf("pktdelay: invalid filter: %w", err)
	}

	r1, _, callErr := procWinDivertOpen.Call(
		uintptr(unsafe.Pointer(filterPtr)),
		uintptr(layer),
		uintptr(priority),
		uintptr(flags),
	)
	handle := windows.Handle(r1)
	if handle == windows.InvalidHandle {
		return nil, fmt.Errorf("pktdelay: WinDivertOpen failed: %w", callErr)
	}

	return &windowsDivertHandle{handle: handle, recvBufSize: 65535}, nil
}

var _ DiversionHandle = &windowsDivertHandle{}

// Recv implements DiversionHandle.
func (h *windowsDivertHandle) Recv(ctx context.Context) ([]byte, Address, error) {
	if h.closed.Load() {
		return nil, nil, ErrHandleClosed
	}

	buf := make([]byte, h.recvBufSize)
	var addr winDivertAddress
	var recvLen uint32

	r1, _, callErr := procWinDivertRecv.Call(
		uintptr(h.handle),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&recvLen)),
		uintptr(unsafe.Pointer(&addr)),
	)
	if r1 == 0 {
		if h.closed.Load() {
			return nil, nil, ErrHandleClosed
		}
		return nil, nil, fmt.Errorf("pktdelay: WinDivertRecv failed: %w", callErr)
	}
	return buf[:recvLen], addr, nil
}

// Send implements DiversionHandle.
func (h *windowsDivertHandle) Send(payload []byte, addr Address) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	if len(payload) == 0 {
		return nil
	}
	wa, ok := addr.(winDivertAddress)
	if !ok {
		return fmt.Errorf("pktdelay: Send: unexpected address type %T", addr)
	}

	var sendLen uint32
	r1, _, callErr := procWinDivertSend.Call(
		uintptr(h.handle),
		uintptr(unsafe.Pointer(&payload[0])),
		uintptr(len(payload)),
		uintptr(unsafe.Pointer(&sendLen)),
		uintptr(unsafe.Pointer(&wa)),
	)
	if r1 == 0 {
		return fmt.Errorf("pktdelay: WinDivertSend failed: %w", callErr)
	}
	return nil
}

// Shutdown implements DiversionHandle. This is the only portable way
// to unblock a Recv call in flight; see the design note on blocking
// I/O cancellation.
func (h *windowsDivertHandle) Shutdown(both bool) error {
	how := uintptr(winDivertShutdownRecv)
	if both {
		how = winDivertShutdownBoth
	}
	h.closed.Store(true)
	r1, _, callErr := procWinDivertShutdown.Call(uintptr(h.handle), how)
	if r1 == 0 {
		return fmt.Errorf("pktdelay: WinDivertShutdown failed: %w", callErr)
	}
	return nil
}

// Close implements DiversionHandle.
func (h *windowsDivertHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		r1, _, callErr := procWinDivertClose.Call(uintptr(h.handle))
		if r1 == 0 {
			err = fmt.Errorf("pktdelay: WinDivertClose failed: %w", callErr)
		}
	})
	return err
}
