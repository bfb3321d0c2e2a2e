package rpc

import (
	"encoding/json"
	"fmt"
)

// jsonCodec moves the facade's plain structs over gRPC. Registered with
// ForceServerCodec on the server and CallContentSubtype on clients.
type jsonCodec struct{}

// Name is the content-subtype, yielding content-type application/grpc+json.
func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}
