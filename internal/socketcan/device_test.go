//go:build linux

package socketcan

import (
	"errors"
	"io"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/can-udp-bridge/internal/can"
)

func TestMarshalRoundTrip(t *testing.T) {
	in := can.Frame{CANID: 0x1ABCDE00 | can.CAN_EFF_FLAG, Len: 3, Data: [8]byte{1, 2, 3, 9, 9}}
	var buf [FrameSize]byte
	Marshal(&in, &buf)
	if buf[4] != 3 {
		t.Fatalf("dlc byte = %d", buf[4])
	}
	for i := 8 + 3; i < FrameSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d not zero: % X", i, buf)
		}
	}
	var out can.Frame
	Unmarshal(&buf, &out)
	if out.CANID != in.CANID || out.Len != 3 || out.Data != [8]byte{1, 2, 3} {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestUnmarshalClampsDLC(t *testing.T) {
	var buf [FrameSize]byte
	buf[4] = 15
	for i := 8; i < FrameSize; i++ {
		buf[i] = 0xAA
	}
	var out can.Frame
	Unmarshal(&buf, &out)
	if out.Len != 8 {
		t.Fatalf("expected clamp to 8, got %d", out.Len)
	}
}

func TestSocketOverSeqpacket(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Skipf("socketpair: %v", err)
	}
	a, b := FromFD(fds[0], "pair0"), FromFD(fds[1], "pair1")
	defer a.Close()
	defer b.Close()

	var fr can.Frame
	if err := a.ReadFrame(&fr); !errors.Is(err, unix.EAGAIN) {
		t.Fatalf("expected EAGAIN on empty socket, got %v", err)
	}
	want := can.Frame{CANID: 0x123, Len: 2, Data: [8]byte{0xAB, 0xCD}}
	if err := b.WriteFrame(&want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.ReadFrame(&fr); err != nil {
		t.Fatalf("read: %v", err)
	}
	if fr != want {
		t.Fatalf("got %+v want %+v", fr, want)
	}

	if _, err := unix.Write(fds[1], []byte{1, 2, 3}); err != nil {
		t.Fatalf("raw write: %v", err)
	}
	if err := a.ReadFrame(&fr); !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Skipf("socketpair: %v", err)
	}
	s := FromFD(fds[0], "x")
	defer unix.Close(fds[1])
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if s.FD() != -1 {
		t.Fatalf("fd not reset")
	}
}

func TestOpenMissingInterface(t *testing.T) {
	if _, err := Open("nosuchcan42"); !errors.Is(err, ErrNoInterface) {
		t.Fatalf("expected ErrNoInterface, got %v", err)
	}
}

func TestReadFramePeerClosed(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Skipf("socketpair: %v", err)
	}
	s := FromFD(fds[0], "pair")
	defer s.Close()
	_ = unix.Close(fds[1])
	var fr can.Frame
	if err := s.ReadFrame(&fr); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
