// Package gwmod implements the gateway's modification pipeline and
// checksum recomputation: pure, allocation-free transforms over a single
// mutable CAN frame, built once at job-creation time and executed by the
// hot path with no further interpretation.
package gwmod

import "github.com/psaab/cangwd/pkg/canbus"

// Operator is one of the four operators a Modification Slot may apply.
type Operator uint8

const (
	OpAND Operator = iota
	OpOR
	OpXOR
	OpSET
)

// Field selects which part of the frame an Op acts on.
type Field uint8

const (
	FieldID Field = iota
	FieldDLC
	FieldData
)

// FieldMask is the type mask on a Modification Slot: any subset of
// {ID, DLC, DATA}. A slot with a zero mask is inactive.
type FieldMask uint8

const (
	MaskID   FieldMask = 1 << 0
	MaskDLC  FieldMask = 1 << 1
	MaskData FieldMask = 1 << 2
)

// Slot is one operator's configuration: a template frame and the subset
// of fields it applies to.
type Slot struct {
	Operator Operator
	Mask     FieldMask
	Template canbus.Frame
}

// Active reports whether the slot contributes any operation to the
// program.
func (s Slot) Active() bool {
	return s.Mask != 0
}

// Op is a single field-level operation: field <- field {op} template's
// same field. It is the unit the hot path dispatches by, replacing the
// null-terminated function-pointer array of the originating
// implementation with a tagged, indexed list (spec §9 "Function-pointer
// array → tagged program").
type Op struct {
	Operator Operator
	Field    Field
	ID       uint32 // valid when Field == FieldID
	DLC      uint8  // valid when Field == FieldDLC
	Data     uint64 // valid when Field == FieldData, little-endian as canbus.Frame.DataU64
}

// MaxOps is the maximum program length: 4 slots × 3 fields.
const MaxOps = 4 * 3

// Program is the ordered list of field operations derived from the four
// operator slots, in the fixed AND → OR → XOR → SET slot order (spec
// §3 "Modification Program"). An empty program is valid and means pure
// forwarding.
type Program []Op

// Compile assembles a Program from the four operator slots, which must
// be supplied in AND, OR, XOR, SET order. Each active slot contributes
// one operation per set bit in its mask, in ID, DLC, DATA field order.
// Compile is called once, at CREATE time; the hot path only ever walks
// the resulting slice.
func Compile(slots [4]Slot) Program {
	prog := make(Program, 0, MaxOps)
	for _, s := range slots {
		if !s.Active() {
			continue
		}
		if s.Mask&MaskID != 0 {
			prog = append(prog, Op{Operator: s.Operator, Field: FieldID, ID: s.Template.ID})
		}
		if s.Mask&MaskDLC != 0 {
			prog = append(prog, Op{Operator: s.Operator, Field: FieldDLC, DLC: s.Template.DLC})
		}
		if s.Mask&MaskData != 0 {
			prog = append(prog, Op{Operator: s.Operator, Field: FieldData, Data: s.Template.DataU64()})
		}
	}
	return prog
}

// Apply runs the program against frame in order. It never allocates,
// never fails, and never reads frame state other than the field each
// operation touches.
func (p Program) Apply(frame *canbus.Frame) {
	for _, op := range p {
		switch op.Field {
		case FieldID:
			frame.ID = applyU32(op.Operator, frame.ID, op.ID)
		case FieldDLC:
			frame.DLC = applyU8(op.Operator, frame.DLC, op.DLC)
		case FieldData:
			frame.SetDataU64(applyU64(op.Operator, frame.DataU64(), op.Data))
		}
	}
}

func applyU32(op Operator, cur, tpl uint32) uint32 {
	switch op {
	case OpAND:
		return cur & tpl
	case OpOR:
		return cur | tpl
	case OpXOR:
		return cur ^ tpl
	default: // OpSET
		return tpl
	}
}

func applyU8(op Operator, cur, tpl uint8) uint8 {
	switch op {
	case OpAND:
		return cur & tpl
	case OpOR:
		return cur | tpl
	case OpXOR:
		return cur ^ tpl
	default:
		return tpl
	}
}

func applyU64(op Operator, cur, tpl uint64) uint64 {
	switch op {
	case OpAND:
		return cur & tpl
	case OpOR:
		return cur | tpl
	case OpXOR:
		return cur ^ tpl
	default:
		return tpl
	}
}
