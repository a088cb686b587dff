// Package wire implements the 13-byte UDP frame format used by the vendor
// CAN gateways:
//
//	offset 0     info byte  (bit7 EFF, bit6 RTR, bits5-4 reserved, bits3-0 DLC)
//	offset 1..4  identifier, big-endian
//	offset 5..12 payload, zero-filled beyond DLC
//
// Encode and Decode are stateless and do not allocate.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/kstaniek/can-udp-bridge/internal/can"
)

// FrameSize is the fixed size of one wire frame.
const FrameSize = 13

const (
	infoEFF     = 0x80
	infoRTR     = 0x40
	infoDLCMask = 0x0F
)

// ErrInvalidLength is returned when the info byte carries a DLC above 8.
var ErrInvalidLength = errors.New("wire: invalid length")

// ErrShortBuffer is returned when the caller buffer is nil or shorter than FrameSize.
var ErrShortBuffer = errors.New("wire: short buffer")

// Decode parses one wire frame from b[:FrameSize] into f.
// Reserved info bits are ignored.
func Decode(b []byte, f *can.Frame) error {
	if len(b) < FrameSize || f == nil {
		return ErrShortBuffer
	}
	info := b[0]
	dlc := info & infoDLCMask
	if dlc > can.MaxDataLen {
		return ErrInvalidLength
	}
	raw := binary.BigEndian.Uint32(b[1:5])
	if info&infoEFF != 0 {
		f.CANID = raw&can.CAN_EFF_MASK | can.CAN_EFF_FLAG
	} else {
		f.CANID = raw & can.CAN_SFF_MASK
	}
	if info&infoRTR != 0 {
		f.CANID |= can.CAN_RTR_FLAG
	}
	f.Len = dlc
	f.Data = [can.MaxDataLen]byte{}
	copy(f.Data[:dlc], b[5:5+int(dlc)])
	return nil
}

// Encode writes f into b[:FrameSize]. Lengths above 8 are clamped and
// payload bytes past the length are always zeroed.
func Encode(f *can.Frame, b []byte) error {
	if len(b) < FrameSize || f == nil {
		return ErrShortBuffer
	}
	dlc := f.Len
	if dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}
	info := dlc & infoDLCMask
	var id uint32
	if f.Extended() {
		info |= infoEFF
		id = f.CANID & can.CAN_EFF_MASK
	} else {
		id = f.CANID & can.CAN_SFF_MASK
	}
	if f.Remote() {
		info |= infoRTR
	}
	b[0] = info
	binary.BigEndian.PutUint32(b[1:5], id)
	payload := b[5:FrameSize]
	n := copy(payload, f.Data[:dlc])
	clear(payload[n:])
	return nil
}

// Split reports how many whole frames a datagram of n bytes holds and how
// many trailing bytes are left over.
func Split(n int) (frames, trailing int) {
	if n <= 0 {
		return 0, 0
	}
	return n / FrameSize, n % FrameSize
}
