//go:build linux

package canbus

import "testing"

func TestMarshalUnmarshalFrameRoundTrip(t *testing.T) {
	in := &Frame{ID: 0x1FFFFFFF, DLC: 5}
	in.Data[0] = 0xAA
	in.Data[4] = 0xFF

	buf := marshalFrame(in)
	if len(buf) != wireFrameLen {
		t.Fatalf("marshalFrame produced %d bytes, want %d", len(buf), wireFrameLen)
	}

	out := unmarshalFrame(buf)
	if out.ID != in.ID || out.DLC != in.DLC || out.Data != in.Data {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMarshalFramePreservesExtendedFlagBit(t *testing.T) {
	f := &Frame{ID: 0x80000123, DLC: 0}
	if !f.IsExtended() {
		t.Fatal("expected IsExtended to see the EFF flag bit embedded in ID")
	}
	out := unmarshalFrame(marshalFrame(f))
	if !out.IsExtended() {
		t.Fatal("extended flag bit lost across marshal/unmarshal")
	}
}
