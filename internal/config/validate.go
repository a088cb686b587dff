package config

import (
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
)

// validator walks the node tree once in document order. Interface names and
// listen ports are tracked across the whole document; transmit ids and
// ranges are reset for every port.
type validator struct {
	ifaces map[string]string // interface name -> path of first use
	listen map[uint16]string // listen port -> path of first use

	txIDs  map[uint32]string
	ranges []acceptedRange
}

type acceptedRange struct {
	r    IDRange
	path string
}

func newValidator() *validator {
	return &validator{
		ifaces: make(map[string]string),
		listen: make(map[uint16]string),
	}
}

func (v *validator) document(root any) (*Config, error) {
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, fieldErr("$", "document must be an object")
	}
	cfg := &Config{}

	srvNode, ok := obj["server"]
	if !ok {
		return nil, fieldErr("server", "missing")
	}
	srv, err := v.server(srvNode)
	if err != nil {
		return nil, err
	}
	cfg.Server = srv

	portsNode, ok := obj["ports"]
	if !ok {
		return nil, fieldErr("ports", "missing")
	}
	list, ok := portsNode.([]any)
	if !ok {
		return nil, fieldErr("ports", "must be an array")
	}
	if len(list) == 0 {
		return nil, fieldErr("ports", "must contain at least one port")
	}
	cfg.Ports = make([]Port, 0, len(list))
	for i, pn := range list {
		p, err := v.port(pn, fmt.Sprintf("ports[%d]", i))
		if err != nil {
			return nil, err
		}
		cfg.Ports = append(cfg.Ports, p)
	}
	return cfg, nil
}

func (v *validator) server(n any) (Server, error) {
	var s Server
	obj, ok := n.(map[string]any)
	if !ok {
		return s, fieldErr("server", "must be an object")
	}
	ip, err := requireString(obj, "server", "ip")
	if err != nil {
		return s, err
	}
	addr, perr := netip.ParseAddr(ip)
	if perr != nil || !addr.Is4() {
		return s, fieldErr("server.ip", fmt.Sprintf("invalid IPv4 address %q", ip))
	}
	s.IP, s.Addr = ip, addr
	if s.HeartbeatMs, err = requirePositive(obj, "server", "heartbeat_ms"); err != nil {
		return s, err
	}
	if s.ReconnectTimeoutMs, err = requirePositive(obj, "server", "reconnect_timeout_ms"); err != nil {
		return s, err
	}
	return s, nil
}

func (v *validator) port(n any, path string) (Port, error) {
	var p Port
	obj, ok := n.(map[string]any)
	if !ok {
		return p, fieldErr(path, "must be an object")
	}
	listen, hasListen, err := optionalPort(obj, path, "udp_listen_port")
	if err != nil {
		return p, err
	}
	send, hasSend, err := optionalPort(obj, path, "udp_send_port")
	if err != nil {
		return p, err
	}
	legacy, hasLegacy, err := optionalPort(obj, path, "udp_port")
	if err != nil {
		return p, err
	}
	if !hasListen && hasLegacy {
		listen, hasListen = legacy, true
	}
	if !hasSend {
		switch {
		case hasLegacy:
			send, hasSend = legacy, true
		case hasListen:
			send, hasSend = listen, true
		}
	}
	if !hasListen {
		return p, fieldErr(join(path, "udp_listen_port"), "missing (and no udp_port fallback)")
	}
	if !hasSend {
		return p, fieldErr(join(path, "udp_send_port"), "missing (and no udp_port fallback)")
	}
	if first, dup := v.listen[listen]; dup {
		return p, fieldErr(join(path, "udp_listen_port"), fmt.Sprintf("duplicate listen port %d (also used by %s)", listen, first))
	}
	v.listen[listen] = path
	p.ListenPort, p.SendPort = listen, send

	chNode, ok := obj["channels"]
	if !ok {
		return p, fieldErr(join(path, "channels"), "missing")
	}
	list, ok := chNode.([]any)
	if !ok {
		return p, fieldErr(join(path, "channels"), "must be an array")
	}
	if len(list) == 0 {
		return p, fieldErr(join(path, "channels"), "must contain at least one channel")
	}
	v.txIDs = make(map[uint32]string, len(list))
	v.ranges = v.ranges[:0]
	p.Channels = make([]Channel, 0, len(list))
	for i, cn := range list {
		ch, err := v.channel(cn, fmt.Sprintf("%s.channels[%d]", path, i))
		if err != nil {
			return p, err
		}
		p.Channels = append(p.Channels, ch)
	}
	return p, nil
}

func (v *validator) channel(n any, path string) (Channel, error) {
	var c Channel
	obj, ok := n.(map[string]any)
	if !ok {
		return c, fieldErr(path, "must be an object")
	}

	name, err := requireString(obj, path, "vcan_name")
	if err != nil {
		return c, err
	}
	if first, dup := v.ifaces[name]; dup {
		return c, fieldErr(join(path, "vcan_name"), fmt.Sprintf("duplicate interface %q (also used by %s)", name, first))
	}
	v.ifaces[name] = path
	c.Interface = name

	tx, present, err := optionalUint(obj, path, "tx_channel_id", math.MaxUint32)
	if err != nil {
		return c, err
	}
	if !present {
		return c, fieldErr(join(path, "tx_channel_id"), "missing")
	}
	c.TxChannelID = uint32(tx)
	if first, dup := v.txIDs[c.TxChannelID]; dup {
		return c, fieldErr(join(path, "tx_channel_id"), fmt.Sprintf("duplicate tx_channel_id %d (also used by %s)", c.TxChannelID, first))
	}
	v.txIDs[c.TxChannelID] = path

	if c.IDRange, err = v.idRange(obj, path); err != nil {
		return c, err
	}

	if c.Bitrate, err = requirePositive(obj, path, "bitrate"); err != nil {
		return c, err
	}
	return c, nil
}

func (v *validator) idRange(obj map[string]any, parent string) (IDRange, error) {
	var r IDRange
	path := join(parent, "id_range")
	n, ok := obj["id_range"]
	if !ok {
		return r, fieldErr(path, "missing")
	}
	ro, ok := n.(map[string]any)
	if !ok {
		return r, fieldErr(path, "must be an object")
	}
	var err error
	if r.Min, err = identifier(ro, path, "min"); err != nil {
		return r, err
	}
	if r.Max, err = identifier(ro, path, "max"); err != nil {
		return r, err
	}
	if r.Min > r.Max {
		return r, fieldErr(path, fmt.Sprintf("min 0x%X exceeds max 0x%X", r.Min, r.Max))
	}
	for _, a := range v.ranges {
		if a.r.Overlaps(r) {
			return r, fieldErr(path, fmt.Sprintf("%s overlaps %s %s", r, a.path, a.r))
		}
	}
	v.ranges = append(v.ranges, acceptedRange{r: r, path: path})
	return r, nil
}

// identifier parses a string holding a hexadecimal (0x) or decimal identifier.
// Leading zeros are decimal; octal, binary and underscore forms are rejected.
func identifier(obj map[string]any, parent, key string) (uint32, error) {
	path := join(parent, key)
	n, ok := obj[key]
	if !ok {
		return 0, fieldErr(path, "missing")
	}
	s, ok := n.(string)
	if !ok {
		return 0, fieldErr(path, "must be a string (hex 0x... or decimal)")
	}
	s = strings.TrimSpace(s)
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	val, err := strconv.ParseUint(digits, base, 32)
	if err != nil || digits == "" {
		return 0, fieldErr(path, fmt.Sprintf("invalid identifier %q", s))
	}
	if val > MaxIdentifier {
		return 0, fieldErr(path, fmt.Sprintf("0x%X exceeds 29-bit maximum 0x%X", val, MaxIdentifier))
	}
	return uint32(val), nil
}

func requireString(obj map[string]any, parent, key string) (string, error) {
	path := join(parent, key)
	n, ok := obj[key]
	if !ok {
		return "", fieldErr(path, "missing")
	}
	s, ok := n.(string)
	if !ok {
		return "", fieldErr(path, "must be a string")
	}
	if s == "" {
		return "", fieldErr(path, "must not be empty")
	}
	return s, nil
}

func optionalUint(obj map[string]any, parent, key string, max uint64) (uint64, bool, error) {
	path := join(parent, key)
	n, ok := obj[key]
	if !ok {
		return 0, false, nil
	}
	num, ok := n.(json.Number)
	if !ok {
		return 0, true, fieldErr(path, "must be an unsigned integer")
	}
	val, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		return 0, true, fieldErr(path, fmt.Sprintf("must be an unsigned integer (got %s)", num))
	}
	if val > max {
		return 0, true, fieldErr(path, fmt.Sprintf("%d exceeds maximum %d", val, max))
	}
	return val, true, nil
}

func requirePositive(obj map[string]any, parent, key string) (uint32, error) {
	val, present, err := optionalUint(obj, parent, key, math.MaxUint32)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, fieldErr(join(parent, key), "missing")
	}
	if val == 0 {
		return 0, fieldErr(join(parent, key), "must be > 0")
	}
	return uint32(val), nil
}

func optionalPort(obj map[string]any, parent, key string) (uint16, bool, error) {
	val, present, err := optionalUint(obj, parent, key, math.MaxUint16)
	if err != nil || !present {
		return 0, present, err
	}
	if val == 0 {
		return 0, true, fieldErr(join(parent, key), "must be in 1..65535")
	}
	return uint16(val), true, nil
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
