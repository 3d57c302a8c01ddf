// Package gwv1 holds the control-plane's wire types: the request and
// response shapes of spec §6's message schema, played here by plain Go
// structs (the hand-written stand-in for generated protobuf code) and a
// small gRPC-style service interface the server implements.
package gwv1

import "context"

// Family identifiers (spec §6 header).
const FamilyCAN uint16 = 29 // matches unix.AF_CAN

// Gateway type identifiers (spec §3).
const GatewayCANCAN uint8 = 0

// Flags (spec §6).
const (
	FlagEcho         uint16 = 1 << 0
	FlagSrcTimestamp uint16 = 1 << 1
)

// Header is the common request prefix (spec §6): family, padding,
// gateway type, flags.
type Header struct {
	Family      uint16
	Pad         uint16
	GatewayType uint8
	Flags       uint16
}

// ModType is the per-slot field bitset (ID, DLC, DATA), spec §3.
type ModType uint8

const (
	ModTypeID   ModType = 1 << 0
	ModTypeDLC  ModType = 1 << 1
	ModTypeData ModType = 1 << 2
)

// Frame mirrors the wire can_frame embedded in each MOD_* attribute.
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [8]byte
}

// ModSlot is one MOD_AND/MOD_OR/MOD_XOR/MOD_SET attribute payload.
type ModSlot struct {
	Type  ModType
	Frame Frame
}

// XORChecksum mirrors the CS_XOR attribute. Disabled iff FromIdx == 42.
type XORChecksum struct {
	FromIdx, ToIdx, ResultIdx int8
	InitXOR                   uint8
}

// CRC8Profile mirrors the CS_CRC8 "profile" selector.
type CRC8Profile uint8

const (
	CRC8ProfileUnspec CRC8Profile = iota
	CRC8ProfileXORValue
	CRC8ProfileXORDLC
)

// CRC8Checksum mirrors the CS_CRC8 attribute. Disabled iff FromIdx == 42.
type CRC8Checksum struct {
	FromIdx, ToIdx, ResultIdx int8
	InitCRC, FinalXOR         uint8
	Profile                   CRC8Profile
	ProfileValue              uint8
	Table                     [256]uint8
}

// Filter mirrors the FILTER attribute.
type Filter struct {
	CANID uint32
	Mask  uint32
}

// CreateRequest is the NEW verb's payload.
type CreateRequest struct {
	Header   Header
	Mods     [4]ModSlot // AND, OR, XOR, SET in that fixed order
	XORCsum  *XORChecksum
	CRC8Csum *CRC8Checksum
	Filter   Filter
	SrcIndex uint32
	DstIndex uint32
}

// CreateResponse acknowledges a successful CREATE.
type CreateResponse struct{}

// DeleteRequest is the DEL verb's payload. SrcIndex == DstIndex == 0
// means remove_all.
type DeleteRequest struct {
	Header   Header
	Mods     [4]ModSlot
	XORCsum  *XORChecksum
	CRC8Csum *CRC8Checksum
	Filter   Filter
	SrcIndex uint32
	DstIndex uint32
}

// DeleteResponse acknowledges a successful DELETE, reporting how many
// records were removed (1 for a specific match, N for remove_all).
type DeleteResponse struct {
	Removed uint32
}

// JobDescriptor is one DUMP record. The server fills Header, Filter,
// SrcIndex, DstIndex and the HANDLED/DROPPED counters; Mods, XORCsum and
// CRC8Csum are left empty, so a job's modifications and checksum specs
// are not reported by DUMP.
type JobDescriptor struct {
	Header   Header
	Mods     [4]ModSlot
	XORCsum  *XORChecksum
	CRC8Csum *CRC8Checksum
	Filter   Filter
	SrcIndex uint32
	DstIndex uint32
	Handled  uint32
	Dropped  uint32
}

// DumpRequest carries the resumable cursor (spec §6 "resumable via an
// opaque cursor").
type DumpRequest struct {
	Cursor uint32
}

// DumpResponse is one page of the dump; NextCursor is 0 once exhausted.
type DumpResponse struct {
	Jobs       []JobDescriptor
	NextCursor uint32
}

// CanGatewayService is the control-plane service contract. The gRPC
// server in pkg/gwapi implements this against a *gwtable.Table; tests can
// also exercise it directly without a network transport.
type CanGatewayService interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
	Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error)
}
