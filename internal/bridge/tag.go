package bridge

// eventKind says which table an event index refers to.
type eventKind uint8

const (
	kindUDP eventKind = iota + 1
	kindCAN
)

func (k eventKind) String() string {
	switch k {
	case kindUDP:
		return "udp"
	case kindCAN:
		return "can"
	default:
		return "invalid"
	}
}

// eventTag identifies the socket behind a readiness notification: either a
// UDP port or a CAN channel, by index into the engine tables.
type eventTag struct {
	kind  eventKind
	index int
}

func udpTag(i int) eventTag { return eventTag{kind: kindUDP, index: i} }
func canTag(i int) eventTag { return eventTag{kind: kindCAN, index: i} }

// pack folds the tag into the two 32-bit words of an epoll data field.
func (t eventTag) pack() (lo, hi int32) { return int32(t.index), int32(t.kind) }

func unpackTag(lo, hi int32) eventTag {
	return eventTag{kind: eventKind(hi), index: int(lo)}
}
