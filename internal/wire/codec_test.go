package wire

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/kstaniek/can-udp-bridge/internal/can"
)

func mkFrame(id uint32, n int, flags uint32) can.Frame {
	var f can.Frame
	if flags&can.CAN_EFF_FLAG != 0 {
		f.CANID = id & can.CAN_EFF_MASK
	} else {
		f.CANID = id & can.CAN_SFF_MASK
	}
	f.CANID |= flags
	if n < 0 {
		n = 0
	}
	if n > 8 {
		n = 8
	}
	f.Len = uint8(n)
	rand.Read(f.Data[:n])
	return f
}

func TestCodec_RoundTrip(t *testing.T) {
	cases := []can.Frame{
		mkFrame(0x123, 8, 0),
		mkFrame(0x7FF, 0, 0),
		mkFrame(0x001, 3, can.CAN_RTR_FLAG),
		mkFrame(0x1ABCDE00, 4, can.CAN_EFF_FLAG|can.CAN_RTR_FLAG),
		mkFrame(0x1FFFFFFF, 8, can.CAN_EFF_FLAG),
		mkFrame(0x12345, 1, can.CAN_EFF_FLAG),
	}
	var buf [FrameSize]byte
	for i, in := range cases {
		if err := Encode(&in, buf[:]); err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		var out can.Frame
		if err := Decode(buf[:], &out); err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if out.ID() != in.ID() || out.Extended() != in.Extended() || out.Remote() != in.Remote() {
			t.Fatalf("case %d: id/flags mismatch got 0x%08X want 0x%08X", i, out.CANID, in.CANID)
		}
		if out.Len != in.Len || !bytes.Equal(out.Payload(), in.Payload()) {
			t.Fatalf("case %d: payload mismatch got % X want % X", i, out.Payload(), in.Payload())
		}
		for j := int(in.Len); j < can.MaxDataLen; j++ {
			if buf[5+j] != 0 {
				t.Fatalf("case %d: wire byte %d not zeroed", i, 5+j)
			}
		}
	}
}

func TestCodec_ExtendedRemoteLayout(t *testing.T) {
	f := can.Frame{CANID: 0x1ABCDE00 | can.CAN_EFF_FLAG | can.CAN_RTR_FLAG, Len: 4}
	copy(f.Data[:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	var buf [FrameSize]byte
	if err := Encode(&f, buf[:]); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0xC4, 0x1A, 0xBC, 0xDE, 0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0}
	if !bytes.Equal(buf[:], want) {
		t.Fatalf("wire mismatch\n got % X\nwant % X", buf[:], want)
	}
	var out can.Frame
	if err := Decode(buf[:], &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID() != 0x1ABCDE00 || !out.Extended() || !out.Remote() || out.Len != 4 {
		t.Fatalf("unexpected frame: id=0x%08X ext=%v rtr=%v len=%d", out.ID(), out.Extended(), out.Remote(), out.Len)
	}
}

func TestCodec_StandardMasksIdentifier(t *testing.T) {
	// Standard frame with bits above 11 set on the wire decodes to the low 11 bits.
	raw := []byte{0x02, 0x00, 0x00, 0xFF, 0xFF, 0xAA, 0xBB, 0, 0, 0, 0, 0, 0}
	var f can.Frame
	if err := Decode(raw, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.CANID != 0x7FF || f.Extended() || f.Len != 2 {
		t.Fatalf("unexpected frame %+v", f)
	}

	// Encoding a standard frame drops the upper bits.
	g := can.Frame{CANID: 0x0ABC, Len: 0}
	var buf [FrameSize]byte
	_ = Encode(&g, buf[:])
	if buf[0] != 0x00 || buf[3] != 0x02 || buf[4] != 0xBC {
		t.Fatalf("unexpected wire % X", buf[:])
	}
}

func TestCodec_DecodeRejectsLargeDLC(t *testing.T) {
	for _, info := range []byte{0x09, 0x0F, 0x89, 0xC9} {
		raw := make([]byte, FrameSize)
		raw[0] = info
		for i := 1; i < FrameSize; i++ {
			raw[i] = 0x55
		}
		var f can.Frame
		if err := Decode(raw, &f); !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("info 0x%02X: expected ErrInvalidLength, got %v", info, err)
		}
	}
}

func TestCodec_DecodeIgnoresReservedBits(t *testing.T) {
	raw := []byte{0x31, 0, 0, 0x01, 0x23, 0x42, 1, 2, 3, 4, 5, 6, 7}
	var f can.Frame
	if err := Decode(raw, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.CANID != 0x123 || f.Len != 1 || f.Data[0] != 0x42 {
		t.Fatalf("unexpected frame %+v", f)
	}
	for i := 1; i < can.MaxDataLen; i++ {
		if f.Data[i] != 0 {
			t.Fatalf("payload byte %d not zero-filled: %d", i, f.Data[i])
		}
	}
}

func TestCodec_EncodeZeroesStaleData(t *testing.T) {
	f := can.Frame{CANID: 0x10, Len: 2, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	buf := bytes.Repeat([]byte{0xFF}, FrameSize)
	if err := Encode(&f, buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(buf[5:], []byte{1, 2, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("stale payload leaked: % X", buf[5:])
	}
}

func TestCodec_EncodeClampsLength(t *testing.T) {
	f := can.Frame{CANID: 0x10, Len: 15}
	var buf [FrameSize]byte
	if err := Encode(&f, buf[:]); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf[0]&0x0F != 8 {
		t.Fatalf("expected DLC clamp to 8, info=0x%02X", buf[0])
	}
}

func TestCodec_ShortBuffer(t *testing.T) {
	var f can.Frame
	if err := Decode(nil, &f); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("decode nil: %v", err)
	}
	if err := Decode(make([]byte, FrameSize-1), &f); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("decode short: %v", err)
	}
	if err := Encode(&f, nil); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("encode nil: %v", err)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct{ n, frames, trailing int }{
		{0, 0, 0},
		{13, 1, 0},
		{26, 2, 0},
		{30, 2, 4},
		{12, 0, 12},
	}
	for _, tc := range tests {
		f, r := Split(tc.n)
		if f != tc.frames || r != tc.trailing {
			t.Fatalf("Split(%d) = %d,%d want %d,%d", tc.n, f, r, tc.frames, tc.trailing)
		}
	}
}
