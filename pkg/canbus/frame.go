// Package canbus defines the CAN frame wire format and the interface the
// gateway uses to talk to the frame-delivery subsystem (receive
// registration and transmission of CAN frames on a network device).
package canbus

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Frame is the gateway's mutable view of a CAN frame: a 29-bit identifier
// (with protocol flags packed into the upper bits, per unix.CAN_EFF_FLAG
// et al.), a data-length code in [0, 8], and an 8-byte payload of which
// only the low DLC bytes are semantically significant.
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [8]byte

	// Origin marks a frame as gateway-originated so the receive callback
	// can refuse to re-route it (loop avoidance, spec §4.4 step 1).
	// Zero means "not gateway-originated" — no real socket owner is ever
	// assigned this value.
	Origin uintptr

	// Timestamp is the frame's receive timestamp, cleared by the gateway
	// unless the job carries the SrcTimestamp flag.
	Timestamp int64
}

// Clone returns a frame with an independently mutable Data array. Used
// when the gateway's modification program is non-empty and the hot path
// must not share payload storage with the original frame (spec §4.4
// step 3).
func (f *Frame) Clone() *Frame {
	dup := *f
	return &dup
}

// ShallowClone returns a copy of the frame. Go arrays are value types,
// so a struct copy of Frame copies Data by value and the copy does not
// share payload storage with the original; ShallowClone exists to make the "no modification
// program, so duplication may be cheap" code path self-documenting at
// the call site, mirroring the two duplication strategies in spec §4.4
// step 3 (skb_copy vs. skb_clone in the originating kernel gateway).
func (f *Frame) ShallowClone() *Frame {
	dup := *f
	return &dup
}

// DataU64 returns the full 8-byte payload as one little-endian 64-bit
// word, the unit the SET/AND/OR/XOR "data" operation acts on (spec
// §4.1).
func (f *Frame) DataU64() uint64 {
	return binary.LittleEndian.Uint64(f.Data[:])
}

// SetDataU64 stores a 64-bit word back into the 8-byte payload.
func (f *Frame) SetDataU64(v uint64) {
	binary.LittleEndian.PutUint64(f.Data[:], v)
}

// IsExtended reports whether the frame carries a 29-bit extended
// identifier.
func (f *Frame) IsExtended() bool {
	return f.ID&unix.CAN_EFF_FLAG != 0
}

// Equal reports whether two frames have byte-identical ID, DLC, and
// data, ignoring Origin and Timestamp — used to implement the
// "output frame is byte-equal to the input frame" invariant (spec §8.5).
func (f *Frame) Equal(other *Frame) bool {
	return f.ID == other.ID && f.DLC == other.DLC && f.Data == other.Data
}
