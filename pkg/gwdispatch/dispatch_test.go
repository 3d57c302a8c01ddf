package gwdispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/psaab/cangwd/pkg/canbus"
	"github.com/psaab/cangwd/pkg/gwmod"
	"github.com/psaab/cangwd/pkg/gwtable"
	"github.com/psaab/cangwd/pkg/netdev"
)

type fakeSender struct {
	sent    []*canbus.Frame
	sentIdx []int
	echo    bool
	fail    bool
}

func (f *fakeSender) Send(_ context.Context, devIndex int, frame *canbus.Frame, echo bool) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, frame)
	f.sentIdx = append(f.sentIdx, devIndex)
	f.echo = echo
	return nil
}

func upDevice(idx int) *netdev.Device {
	// netdev.Device's up flag is unexported; Get a fresh Device by
	// embedding the zero value and flipping it the same way the package
	// does internally isn't possible from outside, so tests use a
	// package-level helper instead.
	return netdev.NewTestDevice(idx, true)
}

func TestPureForward(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)
	job.CANCAN.DstIndex = 2

	frame := &canbus.Frame{ID: 0x123, DLC: 2}
	frame.Data[0] = 0xAA
	frame.Data[1] = 0xBB

	d.Receive(context.Background(), job, frame)

	if len(bus.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(bus.sent))
	}
	got := bus.sent[0]
	if got.ID != 0x123 || got.DLC != 2 || got.Data[0] != 0xAA || got.Data[1] != 0xBB {
		t.Fatalf("forwarded frame mismatch: %+v", got)
	}
	if job.Handled() != 1 || job.Dropped() != 0 {
		t.Fatalf("handled=%d dropped=%d, want 1/0", job.Handled(), job.Dropped())
	}
}

func TestLoopAvoidance(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)

	frame := &canbus.Frame{ID: 1, Origin: OriginMarker}
	d.Receive(context.Background(), job, frame)

	if len(bus.sent) != 0 {
		t.Fatalf("expected no send for gateway-originated frame, got %d", len(bus.sent))
	}
	if job.Handled() != 0 || job.Dropped() != 0 {
		t.Fatalf("loop-avoided frame must not touch counters, got handled=%d dropped=%d", job.Handled(), job.Dropped())
	}
}

func TestDestinationDownDrops(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = netdev.NewTestDevice(2, false)

	frame := &canbus.Frame{ID: 1}
	d.Receive(context.Background(), job, frame)

	if len(bus.sent) != 0 {
		t.Fatal("expected no send when destination is down")
	}
	if job.Dropped() != 1 || job.Handled() != 0 {
		t.Fatalf("handled=%d dropped=%d, want 0/1", job.Handled(), job.Dropped())
	}
}

func TestSendFailureDrops(t *testing.T) {
	bus := &fakeSender{fail: true}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)

	frame := &canbus.Frame{ID: 1}
	d.Receive(context.Background(), job, frame)

	if job.Dropped() != 1 || job.Handled() != 0 {
		t.Fatalf("handled=%d dropped=%d, want 0/1", job.Handled(), job.Dropped())
	}
}

func TestSetIDModification(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)
	slot := gwmod.Slot{Operator: gwmod.OpSET, Mask: gwmod.MaskID}
	slot.Template.ID = 0x7FF
	job.Mod.Program = gwmod.Compile([4]gwmod.Slot{{}, {}, {}, slot})

	frame := &canbus.Frame{ID: 0x123, DLC: 0}
	d.Receive(context.Background(), job, frame)

	if bus.sent[0].ID != 0x7FF {
		t.Fatalf("ID = %#x, want %#x", bus.sent[0].ID, 0x7FF)
	}
}

func TestChecksumOnlyRunsWhenProgramNonEmpty(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)
	// Checksum enabled but no modification slots active: per DESIGN.md
	// Open Question 2, this is a silent no-op.
	job.Mod.XOR = &gwmod.XORChecksum{FromIdx: 0, ToIdx: 1, ResultIdx: 2, InitXOR: 0}

	frame := &canbus.Frame{ID: 1, DLC: 8}
	frame.Data[0] = 0x11
	frame.Data[1] = 0x22
	frame.Data[2] = 0x99 // would be overwritten if checksum ran
	d.Receive(context.Background(), job, frame)

	if bus.sent[0].Data[2] != 0x99 {
		t.Fatalf("checksum must not run for an empty program, got data[2]=%#x", bus.sent[0].Data[2])
	}
}

func TestEchoFlagPassedThrough(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)
	job.Flags = gwtable.FlagEcho

	d.Receive(context.Background(), job, &canbus.Frame{ID: 1})

	if !bus.echo {
		t.Fatal("expected echo flag to be passed to Send")
	}
}

func TestTimestampClearedUnlessSrcTimestampFlag(t *testing.T) {
	bus := &fakeSender{}
	d := New(bus)

	job := gwtable.NewRecord()
	job.DstDev = upDevice(2)

	frame := &canbus.Frame{ID: 1, Timestamp: 1234}
	d.Receive(context.Background(), job, frame)
	if bus.sent[0].Timestamp != 0 {
		t.Fatalf("timestamp = %d, want cleared", bus.sent[0].Timestamp)
	}

	bus.sent = nil
	job.Flags = gwtable.FlagSrcTimestamp
	frame2 := &canbus.Frame{ID: 1, Timestamp: 5678}
	d.Receive(context.Background(), job, frame2)
	if bus.sent[0].Timestamp != 5678 {
		t.Fatalf("timestamp = %d, want preserved (5678)", bus.sent[0].Timestamp)
	}
}
