package config

import (
	"fmt"
	"net/netip"
)

// MaxIdentifier is the 29-bit extended identifier ceiling applied to every range.
const MaxIdentifier = 0x1FFFFFFF

// Config is the root of a validated bridge configuration. It is never
// mutated after Load returns it.
type Config struct {
	Server Server
	Ports  []Port
}

// Server describes the remote UDP peer.
type Server struct {
	IP                 string
	Addr               netip.Addr
	HeartbeatMs        uint32
	ReconnectTimeoutMs uint32
}

// Port is one UDP endpoint and the channels multiplexed over it.
type Port struct {
	ListenPort uint16
	SendPort   uint16
	Channels   []Channel
}

// Channel binds one CAN interface to an identifier range.
type Channel struct {
	Interface   string
	TxChannelID uint32
	IDRange     IDRange
	Bitrate     uint32
}

// IDRange is an inclusive identifier interval.
type IDRange struct {
	Min uint32
	Max uint32
}

// Contains reports whether id lies in [Min, Max].
func (r IDRange) Contains(id uint32) bool { return r.Min <= id && id <= r.Max }

// Overlaps reports whether r and o share at least one identifier.
func (r IDRange) Overlaps(o IDRange) bool { return r.Min <= o.Max && o.Min <= r.Max }

func (r IDRange) String() string { return fmt.Sprintf("[0x%08X,0x%08X]", r.Min, r.Max) }

// ChannelCount returns the number of channels across all ports.
func (c *Config) ChannelCount() int {
	n := 0
	for i := range c.Ports {
		n += len(c.Ports[i].Channels)
	}
	return n
}

// Clone returns a deep copy so callers can hold it independently of the loader.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{Server: c.Server, Ports: make([]Port, len(c.Ports))}
	for i, p := range c.Ports {
		out.Ports[i] = Port{ListenPort: p.ListenPort, SendPort: p.SendPort}
		out.Ports[i].Channels = append([]Channel(nil), p.Channels...)
	}
	return out
}

// Summary is a one-line description used by the startup log and the checker.
func (c *Config) Summary() string {
	return fmt.Sprintf("server=%s listen_ports=%d channels=%d", c.Server.IP, len(c.Ports), c.ChannelCount())
}
