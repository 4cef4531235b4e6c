package pktdelay

//
// Mock DiversionHandle for tests, modeled on the teacher's static
// readable/writeable NIC pattern (see linkfwddelay_test.go in the
// reference pack): a channel-backed producer side and a channel-backed
// collector side, wired together by the engine under test.
//

import (
	"context"
	"sync"
)

// mockAddr is the Address value mock packets carry; the engine never
// inspects it, so its content is arbitrary.
type mockAddr struct{ tag string }

// mockHandle is a [DiversionHandle] whose Recv side is fed from an
// input channel and whose Send side collects into an output slice.
type mockHandle struct {
	in  chan mockFrame
	out chan mockFrame

	closeOnce sync.Once
	closed    chan struct{}

	sendErr error // if set, Send always fails with this error
}

type mockFrame struct {
	payload []byte
	addr    Address
}

func newMockHandle() *mockHandle {
	return &mockHandle{
		in:     make(chan mockFrame, 4096),
		out:    make(chan mockFrame, 4096),
		closed: make(chan struct{}),
	}
}

var _ DiversionHandle = &mockHandle{}

// emit injects a frame as if the kernel had captured it.
func (h *mockHandle) emit(payload []byte, addr Address) {
	h.in <- mockFrame{payload: payload, addr: addr}
}

// Recv implements DiversionHandle.
func (h *mockHandle) Recv(ctx context.Context) ([]byte, Address, error) {
	select {
	case f := <-h.in:
		return f.payload, f.addr, nil
	case <-h.closed:
		return nil, nil, ErrHandleClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Send implements DiversionHandle.
func (h *mockHandle) Send(payload []byte, addr Address) error {
	if h.sendErr != nil {
		return h.sendErr
	}
	select {
	case h.out <- mockFrame{payload: payload, addr: addr}:
	default:
	}
	return nil
}

// Shutdown implements DiversionHandle.
func (h *mockHandle) Shutdown(both bool) error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

// Close implements DiversionHandle.
func (h *mockHandle) Close() error {
	return nil
}
