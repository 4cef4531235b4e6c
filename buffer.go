package pktdelay

//
// Delayed-Packet Buffer: a time-ordered priority queue keyed by
// release timestamp, shared between the Capture Worker (producer),
// the Release Worker (consumer), and the Engine Controller (clear on
// stop). A single mutex serializes every operation; critical sections
// never perform I/O.
//

import (
	"container/heap"
	"sync"
)

// packetHeap implements container/heap.Interface over DelayedPacket
// pointers, ordered by ReleaseAt ascending and, for equal deadlines,
// by capture sequence so intra-tick order is preserved.
type packetHeap []*DelayedPacket

func (h packetHeap) Len() int { return len(h) }

func (h packetHeap) Less(i, j int) bool {
	if h[i].ReleaseAt != h[j].ReleaseAt {
		return h[i].ReleaseAt < h[j].ReleaseAt
	}
	return h[i].seq < h[j].seq
}

func (h packetHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *packetHeap) Push(x any) {
	*h = append(*h, x.(*DelayedPacket))
}

func (h *packetHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Buffer is the thread-safe, time-ordered container of packets
// awaiting release. The zero value is ready to use.
type Buffer struct {
	mu      sync.Mutex
	heap    packetHeap
	nextSeq uint64
}

// NewBuffer creates an empty [Buffer].
func NewBuffer() *Buffer {
	return &Buffer{heap: packetHeap{}}
}

// Enqueue inserts p into the buffer. O(log n). Preserves FIFO order
// for packets sharing the same ReleaseAt.
func (b *Buffer) Enqueue(p *DelayedPacket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.seq = b.nextSeq
	b.nextSeq++
	heap.Push(&b.heap, p)
}

// TryPeek returns the earliest-deadline packet without removing it.
// The second return value is false when the buffer is empty.
func (b *Buffer) TryPeek() (*DelayedPacket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.heap) == 0 {
		return nil, false
	}
	return b.heap[0], true
}

// Dequeue removes and returns the earliest-deadline packet. The
// second return value is false when the buffer is empty.
func (b *Buffer) Dequeue() (*DelayedPacket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&b.heap).(*DelayedPacket), true
}

// Len returns the number of packets currently queued.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.heap)
}

// Clear drains every queued packet, invoking release for each one so
// its payload is returned to the diversion library. Safe to call
// whether Stop is unwinding normally or after an error: no packet is
// ever silently dropped.
func (b *Buffer) Clear(release func(p *DelayedPacket)) {
	b.mu.Lock()
	drained := b.heap
	b.heap = packetHeap{}
	b.mu.Unlock()

	for _, p := range drained {
		if release != nil {
			release(p)
		}
	}
}
