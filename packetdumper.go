package pktdelay

//
// PacketDumper: optional diagnostic capture of everything flowing
// through a DiversionHandle, mirrored into a PCAP file. It copies raw
// bytes only -- it never parses or filters them -- so enabling it does
// not run afoul of the "no payload inspection" non-goal; it exists
// purely for field debugging of the engine itself.
//

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/apex/log"
)

// PacketDumper collects a PCAP trace of every packet passing through
// a wrapped [DiversionHandle]. The zero value is invalid; use
// [NewPacketDumper].
type PacketDumper struct {
	filename string
	logger   Logger
}

// NewPacketDumper creates a new [PacketDumper] writing to filename.
// logger may be nil, in which case apex/log's global logger is used.
func NewPacketDumper(filename string, logger Logger) *PacketDumper {
	if logger == nil {
		logger = log.Log
	}
	return &PacketDumper{filename: filename, logger: logger}
}

// Wrap returns a [DiversionHandle] that mirrors handle's traffic into
// the dumper's PCAP file while delegating every operation to handle
// unchanged.
func (pd *PacketDumper) Wrap(handle DiversionHandle) DiversionHandle {
	return newPacketDumperHandle(pd.filename, handle, pd.logger)
}

// packetDumperHandle is a [DiversionHandle] that also writes to an
// open PCAP file in the background.
type packetDumperHandle struct {
	cancel    context.CancelFunc
	closeOnce sync.Once
	handle    DiversionHandle
	joined    chan struct{}
	logger    Logger
	pich      chan []byte
}

func newPacketDumperHandle(filename string, handle DiversionHandle, logger Logger) *packetDumperHandle {
	const manyPackets = 4096
	ctx, cancel := context.WithCancel(context.Background())
	pd := &packetDumperHandle{
		cancel: cancel,
		handle: handle,
		joined: make(chan struct{}),
		logger: logger,
		pich:   make(chan []byte, manyPackets),
	}
	go pd.loop(ctx, filename)
	return pd
}

var _ DiversionHandle = &packetDumperHandle{}

// Recv implements DiversionHandle.
func (pd *packetDumperHandle) Recv(ctx context.Context) ([]byte, Address, error) {
	payload, addr, err := pd.handle.Recv(ctx)
	if err != nil {
		return nil, nil, err
	}
	pd.deliver(payload)
	return payload, addr, nil
}

// Send implements DiversionHandle.
func (pd *packetDumperHandle) Send(payload []byte, addr Address) error {
	pd.deliver(payload)
	return pd.handle.Send(payload, addr)
}

// Shutdown implements DiversionHandle.
func (pd *packetDumperHandle) Shutdown(both bool) error {
	return pd.handle.Shutdown(both)
}

// Close implements DiversionHandle.
func (pd *packetDumperHandle) Close() error {
	var err error
	pd.closeOnce.Do(func() {
		err = pd.handle.Close()
		pd.cancel()
		pd.logger.Debugf("pktdelay: PacketDumper: awaiting background writer to finish")
		<-pd.joined
	})
	return err
}

// deliver hands packet off to the background writer, dropping it from
// the capture (never from the real traffic path) if the writer can't
// keep up.
func (pd *packetDumperHandle) deliver(packet []byte) {
	snapshot := append([]byte{}, packet...)
	select {
	case pd.pich <- snapshot:
	default:
		// just drop from the capture
	}
}

func (pd *packetDumperHandle) loop(ctx context.Context, filename string) {
	defer close(pd.joined)

	filep, err := os.Create(filename)
	if err != nil {
		pd.logger.Warnf("pktdelay: PacketDumper: os.Create: %s", err.Error())
		return
	}
	defer func() {
		if err := filep.Close(); err != nil {
			pd.logger.Warnf("pktdelay: PacketDumper: filep.Close: %s", err.Error())
		}
	}()

	w := pcapgo.NewWriter(filep)
	const snapLen = 65535
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeIPv4); err != nil {
		pd.logger.Warnf("pktdelay: PacketDumper: WriteFileHeader: %s", err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case packet := <-pd.pich:
			pd.writeEntry(packet, w)
		}
	}
}

func (pd *packetDumperHandle) writeEntry(packet []byte, w *pcapgo.Writer) {
	ci := gopacket.CaptureInfo{
		Timestamp:      time.Now(),
		CaptureLength:  len(packet),
		Length:         len(packet),
		InterfaceIndex: 0,
	}
	if err := w.WritePacket(ci, packet); err != nil {
		pd.logger.Warnf("pktdelay: PacketDumper: WritePacket: %s", err.Error())
	}
}
