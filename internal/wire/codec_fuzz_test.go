package wire

import (
	"testing"

	"github.com/kstaniek/can-udp-bridge/internal/can"
)

// FuzzDecode ensures arbitrary input never panics and that accepted frames
// survive a re-encode unchanged in their meaningful bytes.
func FuzzDecode(f *testing.F) {
	var buf [FrameSize]byte
	for _, fr := range []can.Frame{mkFrame(0x100, 0, 0), mkFrame(0x1ABCDE00, 8, can.CAN_EFF_FLAG), mkFrame(0x7FF, 3, can.CAN_RTR_FLAG)} {
		_ = Encode(&fr, buf[:])
		f.Add(append([]byte(nil), buf[:]...))
	}
	f.Add([]byte{0x09, 0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		var fr can.Frame
		if err := Decode(data, &fr); err != nil {
			return
		}
		var out [FrameSize]byte
		if err := Encode(&fr, out[:]); err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		var back can.Frame
		if err := Decode(out[:], &back); err != nil {
			t.Fatalf("decode re-encoded: %v", err)
		}
		if back != fr {
			t.Fatalf("frame changed across re-encode: %+v vs %+v", back, fr)
		}
	})
}
