// Package gwdispatch implements the gateway's hot path: the per-frame
// receive callback that clones a matching frame, applies a job's
// modification program, recomputes checksums, and sends the result on
// the destination interface (spec §4.4).
package gwdispatch

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/psaab/cangwd/pkg/canbus"
	"github.com/psaab/cangwd/pkg/gwtable"
)

// originSentinel is a package-level allocation whose address the Go
// runtime guarantees is distinct from any other live object for the
// process's lifetime; its address is the gateway-origin marker.
var originSentinel byte

// OriginMarker is the process-unique sentinel value stamped into a
// forwarded frame's Origin field so a later receive on any registered
// callback can recognize and refuse to re-route an already-routed frame
// (spec §4.4 step 1, §9 "Opaque cookie owner marker").
var OriginMarker = uintptr(unsafe.Pointer(&originSentinel))

// Sender is the subset of canbus.Bus the hot path needs to transmit a
// forwarded frame.
type Sender interface {
	Send(ctx context.Context, devIndex int, frame *canbus.Frame, echo bool) error
}

// Dispatcher holds the Sender used to deliver forwarded frames. It is
// shared by every job; the Job Record to act on is passed to each
// Receive call.
type Dispatcher struct {
	bus Sender
}

// New creates a Dispatcher that sends forwarded frames through bus.
func New(bus Sender) *Dispatcher {
	return &Dispatcher{bus: bus}
}

// Receive is the body of the canbus.ReceiveFunc registered for each job:
// it is invoked once per frame matching job's filter. job must not be nil and must be a currently
// published *gwtable.Record (the caller arms one registration per job,
// passing the job as cookie and binding it in a closure, matching
// can_rx_register's (callback, cookie) pairing).
func (d *Dispatcher) Receive(ctx context.Context, job *gwtable.Record, frame *canbus.Frame) {
	// Step 1: loop avoidance.
	if frame.Origin == OriginMarker {
		return
	}

	// Step 2: destination liveness.
	if job.DstDev == nil || !job.DstDev.IsUp() {
		job.IncDropped()
		return
	}

	// Step 3: frame duplication. A non-empty program needs an
	// independently mutable payload; an empty program can share
	// storage, but Go's Frame.Data is a value-typed array, so both
	// paths already produce an independent copy at the language level —
	// the two constructors exist to keep the intent visible at the call
	// site, matching skb_copy vs skb_clone in the source gateway.
	var dup *canbus.Frame
	if len(job.Mod.Program) > 0 {
		dup = frame.Clone()
	} else {
		dup = frame.ShallowClone()
	}
	if dup == nil {
		job.IncDropped()
		return
	}

	// Step 4: mark as gateway-originated.
	dup.Origin = OriginMarker

	// Step 5: retarget to the destination device (recorded via DstIndex;
	// Sender.Send takes the device index explicitly).
	// Step 6: apply the modification program.
	job.Mod.Program.Apply(dup)

	// Step 7: recompute checksums, only if the program actually ran.
	if len(job.Mod.Program) > 0 {
		if job.Mod.XOR.Enabled() {
			if err := job.Mod.XOR.Apply(&dup.Data, dup.DLC); err != nil {
				slog.Debug("gwdispatch: xor checksum skipped", "err", err)
			}
		}
		if job.Mod.CRC8.Enabled() {
			if err := job.Mod.CRC8.Apply(&dup.Data, dup.DLC); err != nil {
				slog.Debug("gwdispatch: crc8 checksum skipped", "err", err)
			}
		}
	}

	// Step 8: clear the receive timestamp unless SrcTimestamp is set.
	if job.Flags&gwtable.FlagSrcTimestamp == 0 {
		dup.Timestamp = 0
	}

	// Step 9: send, passing ECHO through.
	echo := job.Flags&gwtable.FlagEcho != 0
	if err := d.bus.Send(ctx, job.DstIndex(), dup, echo); err != nil {
		job.IncDropped()
		return
	}
	job.IncHandled()
}
