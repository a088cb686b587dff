//go:build linux

package socketcan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/can-udp-bridge/internal/can"
)

// FrameSize is sizeof(struct can_frame).
const FrameSize = unix.CAN_MTU

// ErrShortRead is returned when a read does not yield exactly one can_frame.
var ErrShortRead = errors.New("socketcan: short read")

// ErrNoInterface is returned when the named interface does not exist.
var ErrNoInterface = errors.New("socketcan: no such interface")

// Socket is a non-blocking raw CAN socket. It keeps its own scratch buffers
// so ReadFrame and WriteFrame do not allocate; it is not safe for
// concurrent use.
type Socket struct {
	fd   int
	name string
	rx   [FrameSize]byte
	tx   [FrameSize]byte
}

// InterfaceIndex looks up iface. Interfaces are provisioned outside the
// bridge; a missing one is reported, never created.
func InterfaceIndex(iface string) (int, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNoInterface, iface, err)
	}
	return ifi.Index, nil
}

// Open creates a non-blocking CAN_RAW socket bound to iface.
func Open(iface string) (*Socket, error) {
	idx, err := InterfaceIndex(iface)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 0); err != nil {
		// Older kernels may not know this option; ignore ENOPROTOOPT
		if err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("disable CAN FD: %w", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: idx}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Socket{fd: fd, name: iface}, nil
}

// FromFD wraps an already open descriptor that carries can_frame sized
// datagrams (e.g. one end of a SOCK_SEQPACKET pair). The caller hands over
// ownership; Close closes fd.
func FromFD(fd int, name string) *Socket { return &Socket{fd: fd, name: name} }

// FD returns the descriptor for readiness registration.
func (s *Socket) FD() int { return s.fd }

// Name returns the interface name the socket is bound to.
func (s *Socket) Name() string { return s.name }

// Close is idempotent.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// ReadFrame reads one classic CAN frame. It returns unix.EAGAIN once the
// socket is drained and io.EOF if the peer end went away.
func (s *Socket) ReadFrame(fr *can.Frame) error {
	n, err := unix.Read(s.fd, s.rx[:])
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	if n != FrameSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRead, n)
	}
	Unmarshal(&s.rx, fr)
	return nil
}

// WriteFrame writes one classic CAN frame.
func (s *Socket) WriteFrame(fr *can.Frame) error {
	Marshal(fr, &s.tx)
	_, err := unix.Write(s.fd, s.tx[:])
	return err
}

// struct can_frame (linux/can.h):
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	can_dlc u8    [4]
//	pad     3B    [5:8]
//	data    [8]   [8:16]
//
// The kernel provides fields in host byte order.

// Unmarshal decodes a kernel can_frame. DLC values above 8 are clamped.
func Unmarshal(buf *[FrameSize]byte, fr *can.Frame) {
	fr.CANID = binary.NativeEndian.Uint32(buf[0:4])
	dlc := buf[4]
	if dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}
	fr.Len = dlc
	fr.Data = [can.MaxDataLen]byte{}
	copy(fr.Data[:dlc], buf[8:8+int(dlc)])
}

// Marshal encodes fr as a kernel can_frame.
func Marshal(fr *can.Frame, buf *[FrameSize]byte) {
	*buf = [FrameSize]byte{}
	binary.NativeEndian.PutUint32(buf[0:4], fr.CANID)
	dlc := fr.Len
	if dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}
	buf[4] = dlc
	copy(buf[8:], fr.Data[:dlc])
}
