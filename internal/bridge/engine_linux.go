//go:build linux

package bridge

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/can-udp-bridge/internal/can"
	"github.com/kstaniek/can-udp-bridge/internal/config"
	"github.com/kstaniek/can-udp-bridge/internal/metrics"
	"github.com/kstaniek/can-udp-bridge/internal/routing"
	"github.com/kstaniek/can-udp-bridge/internal/socketcan"
	"github.com/kstaniek/can-udp-bridge/internal/wire"
)

// canSocket is the part of *socketcan.Socket the engine uses.
type canSocket interface {
	FD() int
	ReadFrame(*can.Frame) error
	WriteFrame(*can.Frame) error
	Close() error
}

// Test hooks.
var (
	interfaceExists = func(name string) error {
		_, err := socketcan.InterfaceIndex(name)
		return err
	}
	openCANSocket = func(name string) (canSocket, error) {
		s, err := socketcan.Open(name)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

type udpPort struct {
	desc   config.Port
	fd     int
	remote unix.SockaddrInet4
	rx     []byte
}

type canChannel struct {
	desc config.Channel
	port int
	sock canSocket
}

// runtime is everything Initialize creates and Shutdown destroys.
type runtime struct {
	epfd   int
	ports  []udpPort
	chans  []canChannel
	routes *routing.Table
	events []unix.EpollEvent
	frame  can.Frame
	tx     [wire.FrameSize]byte
}

func newRuntime() runtime { return runtime{epfd: -1} }

// Initialize opens and registers every socket. On failure everything opened
// so far is closed again and the engine ends up Stopped.
func (e *Engine) Initialize() error {
	switch st := e.State(); st {
	case StateUninitialized, StateStopped:
	default:
		return fmt.Errorf("%w: initialize while %s", ErrState, st)
	}
	e.setState(StateInitializing)
	if err := e.initialize(); err != nil {
		e.teardown()
		e.setState(StateStopped)
		return err
	}
	e.setState(StateRunning)
	metrics.SetOpen(len(e.rt.ports), len(e.rt.chans))
	e.log.Info("bridge_ready", "ports", len(e.rt.ports), "channels", len(e.rt.chans))
	return nil
}

func (e *Engine) initialize() error {
	cfg, rt := e.cfg, &e.rt
	if cfg == nil || len(cfg.Ports) == 0 {
		return &config.FieldError{Path: "ports", Reason: "must contain at least one port"}
	}
	server, err := netip.ParseAddr(cfg.Server.IP)
	if err != nil || !server.Is4() {
		return &config.FieldError{Path: "server.ip", Reason: fmt.Sprintf("invalid IPv4 address %q", cfg.Server.IP)}
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("%w: epoll_create1: %v", ErrResource, err)
	}
	rt.epfd = epfd
	rt.ports = make([]udpPort, 0, e.maxPorts)
	rt.chans = make([]canChannel, 0, e.maxChannels)
	entries := make([]routing.Entry, 0, e.maxChannels)

	for pi := range cfg.Ports {
		pc := &cfg.Ports[pi]
		if len(rt.ports) == e.maxPorts {
			return fmt.Errorf("%w: %d ports configured, limit %d", ErrCapacity, len(cfg.Ports), e.maxPorts)
		}
		fd, err := e.openUDP(pc.ListenPort)
		if err != nil {
			return err
		}
		rt.ports = append(rt.ports, udpPort{
			desc:   *pc,
			fd:     fd,
			remote: unix.SockaddrInet4{Port: int(pc.SendPort), Addr: server.As4()},
			rx:     make([]byte, RxBufferSize),
		})
		if err := e.register(fd, udpTag(pi)); err != nil {
			return err
		}
		e.log.Info("udp_port",
			"index", pi,
			"listen", fmt.Sprintf("0.0.0.0:%d", pc.ListenPort),
			"remote", netip.AddrPortFrom(server, pc.SendPort).String(),
		)

		for ci := range pc.Channels {
			ch := &pc.Channels[ci]
			if len(rt.chans) == e.maxChannels {
				return fmt.Errorf("%w: %d channels configured, limit %d", ErrCapacity, cfg.ChannelCount(), e.maxChannels)
			}
			if err := interfaceExists(ch.Interface); err != nil {
				return fmt.Errorf("%w: interface %s: %v", ErrResource, ch.Interface, err)
			}
			sock, err := openCANSocket(ch.Interface)
			if err != nil {
				return fmt.Errorf("%w: can socket %s: %v", ErrResource, ch.Interface, err)
			}
			idx := len(rt.chans)
			rt.chans = append(rt.chans, canChannel{desc: *ch, port: pi, sock: sock})
			if err := e.register(sock.FD(), canTag(idx)); err != nil {
				return err
			}
			entries = append(entries, routing.Entry{Range: ch.IDRange, Channel: idx})
			e.log.Info("can_channel",
				"index", idx,
				"iface", ch.Interface,
				"range", ch.IDRange.String(),
				"port", pi,
			)
		}
	}

	rt.routes = routing.Build(entries)
	for _, ov := range rt.routes.Overlaps() {
		e.log.Warn("route_overlap",
			"iface_a", rt.chans[ov.A.Channel].desc.Interface,
			"range_a", ov.A.Range.String(),
			"iface_b", rt.chans[ov.B.Channel].desc.Interface,
			"range_b", ov.B.Range.String(),
		)
	}
	rt.events = make([]unix.EpollEvent, len(rt.ports)+len(rt.chans))
	return nil
}

func (e *Engine) openUDP(listen uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("%w: udp socket: %v", ErrResource, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		e.log.Warn("udp_reuseaddr_failed", "port", listen, "error", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(listen)}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("%w: bind udp 0.0.0.0:%d: %v", ErrResource, listen, err)
	}
	return fd, nil
}

func (e *Engine) register(fd int, tag eventTag) error {
	lo, hi := tag.pack()
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: lo, Pad: hi}
	if err := unix.EpollCtl(e.rt.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("%w: epoll_ctl %s[%d]: %v", ErrResource, tag.kind, tag.index, err)
	}
	return nil
}

// Run dispatches readiness events until stop is set. The stop flag is
// checked at least once per poll interval. Run returns an error only when
// the multiplexer wait itself fails.
func (e *Engine) Run(stop *atomic.Bool) error {
	if stop == nil {
		return fmt.Errorf("%w: nil stop flag", ErrState)
	}
	if st := e.State(); st != StateRunning {
		return fmt.Errorf("%w: run while %s", ErrState, st)
	}
	rt := &e.rt
	timeout := int(e.pollInterval / time.Millisecond)
	if timeout <= 0 {
		timeout = 1
	}
	for !stop.Load() {
		n, err := unix.EpollWait(rt.epfd, rt.events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			metrics.IncError(metrics.ErrPoll)
			return fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			tag := unpackTag(rt.events[i].Fd, rt.events[i].Pad)
			switch tag.kind {
			case kindUDP:
				if tag.index < len(rt.ports) {
					e.drainUDP(tag.index)
				}
			case kindCAN:
				if tag.index < len(rt.chans) {
					e.drainCAN(tag.index)
				}
			}
		}
	}
	return nil
}

// drainUDP receives datagrams on port p until the socket would block.
func (e *Engine) drainUDP(p int) {
	port := &e.rt.ports[p]
	for {
		n, err := unix.Read(port.fd, port.rx)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			metrics.IncError(metrics.ErrUDPRead)
			e.log.Warn("udp_recv_error", "port", p, "error", err)
			return
		}
		metrics.IncUDPRxDatagram()
		frames, trailing := wire.Split(n)
		if trailing != 0 {
			metrics.IncPartial()
			e.log.Warn("udp_partial_datagram", "port", p, "len", n, "frame_size", wire.FrameSize)
		}
		for i := 0; i < frames; i++ {
			off := i * wire.FrameSize
			e.forwardToCAN(p, port.rx[off:off+wire.FrameSize])
		}
	}
}

func (e *Engine) forwardToCAN(p int, b []byte) {
	rt := &e.rt
	if err := wire.Decode(b, &rt.frame); err != nil {
		metrics.IncMalformed()
		e.log.Warn("wire_decode_error", "port", p, "error", err)
		return
	}
	metrics.IncUDPRx()
	id := rt.frame.ID()
	ci, ok := rt.routes.Resolve(id)
	if !ok {
		metrics.IncRouteMiss()
		e.log.Warn("route_miss", "port", p, "can_id", fmt.Sprintf("0x%08X", id))
		return
	}
	ch := &rt.chans[ci]
	if ch.port != p {
		metrics.IncCrossPort()
		e.log.Warn("route_cross_port", "port", p, "channel", ci, "owner", ch.port, "can_id", fmt.Sprintf("0x%08X", id))
		return
	}
	if err := ch.sock.WriteFrame(&rt.frame); err != nil {
		metrics.IncError(metrics.ErrSocketCANWrite)
		e.log.Warn("can_write_error", "iface", ch.desc.Interface, "can_id", fmt.Sprintf("0x%08X", id), "error", err)
		return
	}
	metrics.IncSocketCANTx()
}

// drainCAN reads native frames on channel c until the socket would block
// and sends each one to the owning port's remote address.
func (e *Engine) drainCAN(c int) {
	rt := &e.rt
	ch := &rt.chans[c]
	port := &rt.ports[ch.port]
	for {
		err := ch.sock.ReadFrame(&rt.frame)
		switch {
		case err == nil:
		case errors.Is(err, unix.EAGAIN):
			return
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, socketcan.ErrShortRead):
			metrics.IncError(metrics.ErrSocketCANRead)
			e.log.Warn("can_short_read", "iface", ch.desc.Interface, "error", err)
			continue
		case errors.Is(err, io.EOF):
			return
		default:
			metrics.IncError(metrics.ErrSocketCANRead)
			e.log.Warn("can_read_error", "iface", ch.desc.Interface, "error", err)
			return
		}
		metrics.IncSocketCANRx()
		if err := wire.Encode(&rt.frame, rt.tx[:]); err != nil {
			metrics.IncMalformed()
			e.log.Warn("wire_encode_error", "iface", ch.desc.Interface, "error", err)
			continue
		}
		if err := unix.Sendto(port.fd, rt.tx[:], 0, &port.remote); err != nil {
			if err != unix.EAGAIN {
				metrics.IncError(metrics.ErrUDPWrite)
				e.log.Warn("udp_send_error", "port", ch.port, "error", err)
			}
			return
		}
		metrics.IncUDPTx()
	}
}

// Shutdown closes channel sockets, then UDP sockets, then the multiplexer.
// It may be called any number of times.
func (e *Engine) Shutdown() {
	if e.State() == StateStopped {
		return
	}
	e.setState(StateShuttingDown)
	e.teardown()
	e.setState(StateStopped)
	e.log.Info("bridge_stopped")
}

func (e *Engine) teardown() {
	rt := &e.rt
	for i := range rt.chans {
		if err := rt.chans[i].sock.Close(); err != nil {
			e.log.Warn("can_close_error", "iface", rt.chans[i].desc.Interface, "error", err)
		}
		rt.chans[i].sock = nil
	}
	for i := range rt.ports {
		if rt.ports[i].fd >= 0 {
			_ = unix.Close(rt.ports[i].fd)
			rt.ports[i].fd = -1
		}
	}
	if rt.epfd >= 0 {
		_ = unix.Close(rt.epfd)
		rt.epfd = -1
	}
	rt.chans = rt.chans[:0]
	rt.ports = rt.ports[:0]
	rt.routes = nil
	rt.events = nil
	metrics.SetOpen(0, 0)
}

// Ports returns the number of open UDP ports.
func (e *Engine) Ports() int { return len(e.rt.ports) }

// Channels returns the number of open CAN channels.
func (e *Engine) Channels() int { return len(e.rt.chans) }
