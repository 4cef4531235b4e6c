// Command delaysim exercises the delay core against a loopback
// diversion handle, without requiring the WinDivert driver or
// Administrator rights. It is meant for developing the engine on any
// platform, including off Windows.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/bassosimone/pktdelay"
)

// loopbackHandle is a [pktdelay.DiversionHandle] that feeds back every
// sent packet as a freshly captured one, so a single running engine
// can be observed end to end without real traffic.
type loopbackHandle struct {
	ch        chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newLoopbackHandle() *loopbackHandle {
	return &loopbackHandle{
		ch:     make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

var _ pktdelay.DiversionHandle = &loopbackHandle{}

func (h *loopbackHandle) Recv(ctx context.Context) ([]byte, pktdelay.Address, error) {
	select {
	case p := <-h.ch:
		return p, nil, nil
	case <-h.closed:
		return nil, nil, pktdelay.ErrHandleClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (h *loopbackHandle) Send(payload []byte, addr pktdelay.Address) error {
	select {
	case h.ch <- payload:
	default:
	}
	return nil
}

func (h *loopbackHandle) Shutdown(both bool) error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *loopbackHandle) Close() error {
	return nil
}

func main() {
	delayMs := flag.Int("delay-ms", 100, "one-way delay to apply, in milliseconds")
	packets := flag.Int("packets", 5, "number of synthetic packets to inject")
	duration := flag.Duration("duration", 5*time.Second, "how long to keep the engine running")
	pcapFile := flag.String("pcap", "", "optional path to mirror engine traffic into as a PCAP capture")
	flag.Parse()

	handle := newLoopbackHandle()
	var diversion pktdelay.DiversionHandle = handle
	if *pcapFile != "" {
		diversion = pktdelay.NewPacketDumper(*pcapFile, log.Log).Wrap(handle)
	}
	engine := pktdelay.NewEngine(func() (pktdelay.DiversionHandle, error) {
		return diversion, nil
	}, log.Log)

	engine.OnStatus(func(text string) { log.Infof("delaysim: status: %s", text) })
	engine.OnError(func(text string) { log.Warnf("delaysim: error: %s", text) })

	pktdelay.Must0(engine.Start(*delayMs))
	defer engine.Stop()

	for i := 0; i < *packets; i++ {
		handle.ch <- []byte(fmt.Sprintf("packet-%d", i))
	}

	deadline := time.After(*duration)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			log.Infof("delaysim: done after %s", *duration)
			return
		case <-ticker.C:
			log.Infof("delaysim: queued=%d running=%v", engine.QueuedPacketCount(), engine.IsRunning())
		}
	}
}
