package gwv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the gRPC content-subtype this package registers under.
// Hand-maintained request/response structs (this package has no protoc
// step available) can't satisfy the default "proto" codec's
// proto.Message interface, so the client pins this codec on every call
// via its content-subtype, and the server looks it up in the codec
// registry by that subtype, instead of relying on protobuf wire encoding.
const jsonCodecName = "cangw-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gwv1: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("gwv1: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
