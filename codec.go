// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"maps"
	"slices"
)

// Codec converts command batches to and from bytes. Payload values stay
// opaque: codecs frame and label them, the DataConverter owns their content.
type Codec interface {
	// Encode serializes a batch in order.
	Encode(commands []Command) ([]byte, error)

	// Decode deserializes a batch in order. headers are the batch headers
	// supplied by the transport; they populate Request.Tick.
	Decode(data []byte, headers map[string]string) ([]Command, error)

	// Name returns the codec identifier.
	Name() string
}

// Codec names for configuration.
const (
	CodecNameJSON  = "json"
	CodecNameProto = "proto"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameProto:
		return ProtoCodec{}
	default:
		return JSONCodec{}
	}
}

// stampTick copies the batch tick onto every decoded request.
func stampTick(commands []Command, headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	tick, err := ParseTick(headers)
	if err != nil {
		return err
	}
	for _, c := range commands {
		if r, ok := c.(*Request); ok {
			r.Tick = tick
		}
	}
	return nil
}

// sortedKeys fixes header order on the wire.
func sortedKeys(h Header) []string {
	return slices.Sorted(maps.Keys(h))
}
