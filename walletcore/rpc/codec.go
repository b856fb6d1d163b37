package rpc

import (
	"encoding/json"
	"fmt"
)

// jsonCodec serves plain Go structs with encoding/json under the connect "json" codec name
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
