package pktdelay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestPacketDumperMirrorsTraffic(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "capture.pcap")

	inner := newMockHandle()
	dumper := NewPacketDumper(pcapPath, nullLogger{})
	wrapped := dumper.Wrap(inner)

	inner.emit([]byte("captured"), mockAddr{"a"})
	payload, _, err := wrapped.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "captured" {
		t.Fatalf("unexpected payload: %q", payload)
	}

	if err := wrapped.Send([]byte("released"), mockAddr{"a"}); err != nil {
		t.Fatal(err)
	}
	select {
	case f := <-inner.out:
		if string(f.payload) != "released" {
			t.Fatalf("unexpected delegated payload: %q", f.payload)
		}
	default:
		t.Fatal("expected Send to delegate to the wrapped handle")
	}

	if err := wrapped.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(pcapPath)
	if err != nil {
		t.Fatalf("expected a pcap file to be written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected a non-empty pcap file")
	}
}
