package gwmod

import (
	"testing"

	"github.com/psaab/cangwd/pkg/canbus"
)

func slotFor(op Operator, mask FieldMask, id uint32, dlc uint8, data uint64) Slot {
	s := Slot{Operator: op, Mask: mask}
	s.Template.ID = id
	s.Template.DLC = dlc
	s.Template.SetDataU64(data)
	return s
}

func TestCompileEmptyProgramIsPureForward(t *testing.T) {
	prog := Compile([4]Slot{})
	if len(prog) != 0 {
		t.Fatalf("expected empty program, got %d ops", len(prog))
	}

	f := &canbus.Frame{ID: 0x123, DLC: 2}
	f.Data[0] = 0xAA
	f.Data[1] = 0xBB
	before := *f
	prog.Apply(f)
	if !f.Equal(&before) {
		t.Fatalf("empty program mutated frame: got %+v want %+v", f, before)
	}
}

func TestSetID(t *testing.T) {
	slots := [4]Slot{{}, {}, {}, slotFor(OpSET, MaskID, 0x7FF, 0, 0)}
	prog := Compile(slots)

	f := &canbus.Frame{ID: 0x123, DLC: 0}
	prog.Apply(f)

	if f.ID != 0x7FF {
		t.Fatalf("ID = %#x, want %#x", f.ID, 0x7FF)
	}
}

func TestAndThenOrOnData(t *testing.T) {
	slots := [4]Slot{
		slotFor(OpAND, MaskData, 0, 0, 0x00FFFFFFFFFFFFFF),
		slotFor(OpOR, MaskData, 0, 0, 0xAA00000000000000),
		{},
		{},
	}
	prog := Compile(slots)

	f := &canbus.Frame{ID: 1, DLC: 8}
	f.SetDataU64(0x1122334455667788)
	prog.Apply(f)

	want := uint64(0xAA22334455667788)
	if got := f.DataU64(); got != want {
		t.Fatalf("data = %#x, want %#x", got, want)
	}
}

func TestOrderOfOperationsMatchesSlotOrder(t *testing.T) {
	// AND -> OR -> XOR -> SET: SET must win regardless of earlier ops.
	slots := [4]Slot{
		slotFor(OpAND, MaskID, 0x000, 0, 0),
		slotFor(OpOR, MaskID, 0xFFF, 0, 0),
		slotFor(OpXOR, MaskID, 0x001, 0, 0),
		slotFor(OpSET, MaskID, 0x042, 0, 0),
	}
	prog := Compile(slots)

	f := &canbus.Frame{ID: 0x500}
	prog.Apply(f)

	if f.ID != 0x042 {
		t.Fatalf("ID = %#x, want %#x", f.ID, 0x042)
	}
}

func TestCompileCapsAtMaxOps(t *testing.T) {
	full := MaskID | MaskDLC | MaskData
	slots := [4]Slot{
		slotFor(OpAND, full, 1, 1, 1),
		slotFor(OpOR, full, 1, 1, 1),
		slotFor(OpXOR, full, 1, 1, 1),
		slotFor(OpSET, full, 1, 1, 1),
	}
	prog := Compile(slots)
	if len(prog) != MaxOps {
		t.Fatalf("len(prog) = %d, want %d", len(prog), MaxOps)
	}
}

func TestInactiveSlotContributesNothing(t *testing.T) {
	s := Slot{Operator: OpSET, Mask: 0}
	if s.Active() {
		t.Fatal("zero mask should be inactive")
	}
	prog := Compile([4]Slot{s, {}, {}, {}})
	if len(prog) != 0 {
		t.Fatalf("inactive slot produced %d ops", len(prog))
	}
}
