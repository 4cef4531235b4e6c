// Command calibrate measures the timing accuracy of the delay core: it
// drives the engine with synthetic UDP-over-IPv4 packets through a
// loopback diversion handle and reports how closely the observed
// release jitter tracks the configured delay.
package main

import (
	"context"
	"flag"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/montanaflynn/stats"

	"github.com/bassosimone/pktdelay"
)

// timestampedHandle is a loopback [pktdelay.DiversionHandle] that
// records, for every packet it re-injects, how long the engine held
// it since capture.
type timestampedHandle struct {
	ch        chan capturedPacket
	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	samples []time.Duration
}

type capturedPacket struct {
	payload   []byte
	capturedT time.Time
}

func newTimestampedHandle() *timestampedHandle {
	return &timestampedHandle{
		ch:     make(chan capturedPacket, 4096),
		closed: make(chan struct{}),
	}
}

var _ pktdelay.DiversionHandle = &timestampedHandle{}

func (h *timestampedHandle) inject(payload []byte) {
	select {
	case h.ch <- capturedPacket{payload: payload, capturedT: time.Now()}:
	default:
	}
}

func (h *timestampedHandle) Recv(ctx context.Context) ([]byte, pktdelay.Address, error) {
	select {
	case p := <-h.ch:
		return p.payload, p.capturedT, nil
	case <-h.closed:
		return nil, nil, pktdelay.ErrHandleClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (h *timestampedHandle) Send(payload []byte, addr pktdelay.Address) error {
	capturedT, _ := addr.(time.Time)
	h.mu.Lock()
	h.samples = append(h.samples, time.Since(capturedT))
	h.mu.Unlock()
	return nil
}

func (h *timestampedHandle) Shutdown(both bool) error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *timestampedHandle) Close() error {
	return nil
}

// synthesizeUDPPacket builds a minimal IPv4/UDP packet with a payload
// of the given size, for load generation purposes only: the engine
// never parses it, it is opaque bytes end to end.
func synthesizeUDPPacket(seq int, payloadSize int) []byte {
	payload := make([]byte, payloadSize)
	for i := range payload {
		payload[i] = byte(seq)
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{10, 0, 0, 2},
		DstIP:    []byte{10, 0, 0, 1},
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 6000}
	udp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	pktdelay.Must0(gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func main() {
	delayMs := flag.Int("delay-ms", 50, "one-way delay to calibrate against")
	count := flag.Int("count", 200, "number of synthetic packets to send")
	payloadSize := flag.Int("payload-size", 256, "synthetic UDP payload size in bytes")
	interval := flag.Duration("interval", 5*time.Millisecond, "interval between synthetic packets")
	flag.Parse()

	handle := newTimestampedHandle()
	engine := pktdelay.NewEngine(func() (pktdelay.DiversionHandle, error) {
		return handle, nil
	}, log.Log)

	pktdelay.Must0(engine.Start(*delayMs))

	for i := 0; i < *count; i++ {
		handle.inject(synthesizeUDPPacket(i, *payloadSize))
		time.Sleep(*interval)
	}

	// give the slowest packet time to clear the configured delay
	time.Sleep(time.Duration(*delayMs)*time.Millisecond + time.Second)
	engine.Stop()

	handle.mu.Lock()
	samples := make([]float64, len(handle.samples))
	for i, d := range handle.samples {
		samples[i] = float64(d.Microseconds()) / 1000.0
	}
	handle.mu.Unlock()

	if len(samples) == 0 {
		log.Warn("calibrate: no samples collected")
		return
	}

	mean, _ := stats.Mean(samples)
	p50, _ := stats.Percentile(samples, 50)
	p95, _ := stats.Percentile(samples, 95)
	p99, _ := stats.Percentile(samples, 99)
	stddev, _ := stats.StandardDeviation(samples)

	log.Infof("calibrate: samples=%d target_delay_ms=%d", len(samples), *delayMs)
	log.Infof("calibrate: mean=%.3fms p50=%.3fms p95=%.3fms p99=%.3fms stddev=%.3fms",
		mean, p50, p95, p99, stddev)
}
