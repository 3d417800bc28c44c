// Package connect exposes the control service over Connect RPC.
package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// codecName is the Connect codec name; requests use "application/json".
const codecName = "json"

// jsonCodec marshals plain Go messages with encoding/json.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSONCodec registers the JSON codec on a handler or client.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
