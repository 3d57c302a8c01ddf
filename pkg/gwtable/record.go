// Package gwtable implements the Job Table: the concurrent set of Job
// Records the gateway's hot path reads from and the control plane
// mutates. Reads never block and never take the writer lock; removed
// records are reclaimed only once no in-flight reader can still observe
// them (spec §4.3, §5).
package gwtable

import (
	"sync"
	"sync/atomic"

	"github.com/psaab/cangwd/pkg/canbus"
	"github.com/psaab/cangwd/pkg/gwmod"
	"github.com/psaab/cangwd/pkg/netdev"
)

// GatewayType mirrors spec §3's gwtype field; only CANCAN is defined.
type GatewayType uint8

const GatewayCANCAN GatewayType = 0

// Flags is the bit set from spec §3 ({ECHO, SrcTimestamp}).
type Flags uint16

const (
	FlagEcho         Flags = 1 << 0
	FlagSrcTimestamp Flags = 1 << 1
)

// CANCANFilter is a CAN->CAN job's source and destination interface
// indices plus the (can_id, can_mask) pair identifying which source
// frames it matches, mirrored here as ccgw in spec §4.5's byte-wise
// DELETE match.
type CANCANFilter struct {
	SrcIndex, DstIndex int
	Filter             canbus.Filter
}

// Mod bundles the immutable, post-compile modification state of a Job
// Record: the flattened operation program plus the two optional checksum
// specs. It is compared byte-wise (field by field, per spec §4.1's
// template-copy rule and §9's "identity-by-bytes comparison" note) by
// DELETE's match predicate.
type Mod struct {
	Program  gwmod.Program
	XOR      *gwmod.XORChecksum
	CRC8     *gwmod.CRC8Checksum
}

// Equal performs the byte-wise comparison spec §4.3/§4.5 require for
// DELETE matching: same program, same checksum spec values (both nil, or
// both set to identical field values).
func (m Mod) Equal(other Mod) bool {
	if len(m.Program) != len(other.Program) {
		return false
	}
	for i := range m.Program {
		if m.Program[i] != other.Program[i] {
			return false
		}
	}
	if !xorEqual(m.XOR, other.XOR) {
		return false
	}
	if !crc8Equal(m.CRC8, other.CRC8) {
		return false
	}
	return true
}

func xorEqual(a, b *gwmod.XORChecksum) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func crc8Equal(a, b *gwmod.CRC8Checksum) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Record is a Job Record (spec §3): a value type describing one gateway
// binding. Once published into a Table, every field except the counters
// is immutable; handled/dropped are the only mutable state and are
// updated by the hot path without the writer mutex (spec §5).
type Record struct {
	GWType GatewayType
	Flags  Flags

	SrcDev *netdev.Device
	DstDev *netdev.Device

	CANCAN CANCANFilter
	Mod    Mod

	handled atomic.Uint32
	dropped atomic.Uint32

	// graveyardEpoch is set when the record is unlinked from the live
	// slice; it records the epoch at unlink time so the reclaimer knows
	// when every in-flight reader has moved past it (spec §9 "Lock-free
	// reader vs. deferred reclamation").
	graveyardEpoch uint64
}

// Handled returns the current handled-frame count.
func (r *Record) Handled() uint32 { return r.handled.Load() }

// Dropped returns the current dropped-frame count.
func (r *Record) Dropped() uint32 { return r.dropped.Load() }

// IncHandled atomically increments the handled counter.
func (r *Record) IncHandled() { r.handled.Add(1) }

// IncDropped atomically increments the dropped counter.
func (r *Record) IncDropped() { r.dropped.Add(1) }

// SrcIndex returns the source interface index.
func (r *Record) SrcIndex() int { return r.CANCAN.SrcIndex }

// DstIndex returns the destination interface index.
func (r *Record) DstIndex() int { return r.CANCAN.DstIndex }

// recordPool bounds allocation pressure for Job Records, a typed
// fixed-shape object pool per spec §5 "Allocation" / §9's pool-allocator
// design note. Not a correctness requirement.
var recordPool = sync.Pool{
	New: func() any { return new(Record) },
}

// NewRecord returns a zeroed Record drawn from the pool. The control
// plane's CREATE handler uses this instead of a bare struct literal so
// Job Record allocation is pooled per spec §5 / §9.
func NewRecord() *Record {
	r := recordPool.Get().(*Record)
	*r = Record{}
	return r
}

// releaseRecord returns a fully-reclaimed (no reader can observe it)
// Record to the pool. Device references must already have been released
// by the caller.
func releaseRecord(r *Record) {
	recordPool.Put(r)
}
