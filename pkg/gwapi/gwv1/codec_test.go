package gwv1

import "testing"

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &CreateRequest{
		Header:   Header{Family: FamilyCAN, GatewayType: GatewayCANCAN, Flags: FlagEcho},
		SrcIndex: 3,
		DstIndex: 4,
		Filter:   Filter{CANID: 0x123, Mask: 0x7FF},
	}

	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out CreateRequest
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.SrcIndex != in.SrcIndex || out.DstIndex != in.DstIndex {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if out.Header != in.Header {
		t.Fatalf("header round trip mismatch: got %+v, want %+v", out.Header, in.Header)
	}
	if out.Filter != in.Filter {
		t.Fatalf("filter round trip mismatch: got %+v, want %+v", out.Filter, in.Filter)
	}
}

func TestJSONCodecName(t *testing.T) {
	if (jsonCodec{}).Name() != jsonCodecName {
		t.Fatalf("Name() = %q, want %q", (jsonCodec{}).Name(), jsonCodecName)
	}
}
