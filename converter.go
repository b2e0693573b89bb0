// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload encoding labels.
const (
	EncodingNull    = "binary/null"
	EncodingRaw     = "binary/plain"
	EncodingJSON    = "json/plain"
	EncodingMsgpack = "binary/msgpack"
)

// ErrNoConverter reports a value or payload no registered converter accepts.
var ErrNoConverter = errors.New("durable: no payload converter")

// Payload is one opaque value on the wire. The engine frames and labels
// payloads but never inspects Data.
type Payload struct {
	Encoding string `json:"encoding" msgpack:"encoding"`
	Data     []byte `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Payloads is an ordered value list.
type Payloads []Payload

// Decode converts p into ptrs with DefaultConverter.
func (p Payloads) Decode(ptrs ...any) error {
	return DefaultConverter.FromPayloads(p, ptrs...)
}

// Header carries opaque values propagated across coroutine boundaries.
type Header map[string]Payload

// Clone returns a shallow copy of h. Clone of a nil header is nil.
func (h Header) Clone() Header {
	if len(h) == 0 {
		return nil
	}
	c := make(Header, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// PayloadConverter converts values of one encoding.
// ToPayload reports false when the value is not handled.
type PayloadConverter interface {
	Encoding() string
	ToPayload(v any) (Payload, bool, error)
	FromPayload(p Payload, ptr any) error
}

// DataConverter is the value collaborator: it turns application values into
// payloads and back, dispatching on the payload encoding label.
type DataConverter struct {
	converters []PayloadConverter
	byEncoding map[string]PayloadConverter
}

// DefaultConverter encodes nil, []byte and JSON values and additionally
// decodes MessagePack payloads.
var DefaultConverter = GetConverter("json")

// NewDataConverter returns a DataConverter trying converters in order.
func NewDataConverter(converters ...PayloadConverter) *DataConverter {
	d := &DataConverter{
		converters: converters,
		byEncoding: make(map[string]PayloadConverter, len(converters)),
	}
	for _, c := range converters {
		d.byEncoding[c.Encoding()] = c
	}
	return d
}

// ToPayloads encodes values in order.
func (d *DataConverter) ToPayloads(values ...any) (Payloads, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(Payloads, 0, len(values))
	for i, v := range values {
		p, err := d.ToPayload(v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ToPayload encodes one value with the first converter that accepts it.
func (d *DataConverter) ToPayload(v any) (Payload, error) {
	if p, ok := v.(Payload); ok {
		return p, nil
	}
	for _, c := range d.converters {
		p, ok, err := c.ToPayload(v)
		if err != nil {
			return Payload{}, err
		}
		if ok {
			return p, nil
		}
	}
	return Payload{}, fmt.Errorf("%w for %T", ErrNoConverter, v)
}

// FromPayloads decodes ps into ptrs. Extra payloads are ignored;
// missing payloads leave the remaining targets untouched.
func (d *DataConverter) FromPayloads(ps Payloads, ptrs ...any) error {
	for i, ptr := range ptrs {
		if i >= len(ps) {
			return nil
		}
		if err := d.FromPayload(ps[i], ptr); err != nil {
			return fmt.Errorf("payload %d: %w", i, err)
		}
	}
	return nil
}

// FromPayload decodes one payload into ptr.
func (d *DataConverter) FromPayload(p Payload, ptr any) error {
	c, ok := d.byEncoding[p.Encoding]
	if !ok {
		return fmt.Errorf("%w for encoding %q", ErrNoConverter, p.Encoding)
	}
	return c.FromPayload(p, ptr)
}

// NullConverter encodes nil values.
type NullConverter struct{}

func (NullConverter) Encoding() string { return EncodingNull }

func (NullConverter) ToPayload(v any) (Payload, bool, error) {
	if v == nil {
		return Payload{Encoding: EncodingNull}, true, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return Payload{Encoding: EncodingNull}, true, nil
		}
	}
	return Payload{}, false, nil
}

func (NullConverter) FromPayload(_ Payload, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode null: target %T is not a pointer", ptr)
	}
	rv.Elem().SetZero()
	return nil
}

// RawConverter passes []byte values through unchanged.
type RawConverter struct{}

func (RawConverter) Encoding() string { return EncodingRaw }

func (RawConverter) ToPayload(v any) (Payload, bool, error) {
	b, ok := v.([]byte)
	if !ok {
		return Payload{}, false, nil
	}
	return Payload{Encoding: EncodingRaw, Data: b}, true, nil
}

func (RawConverter) FromPayload(p Payload, ptr any) error {
	switch t := ptr.(type) {
	case *[]byte:
		*t = append([]byte(nil), p.Data...)
		return nil
	case *any:
		*t = append([]byte(nil), p.Data...)
		return nil
	}
	return fmt.Errorf("decode %s: target %T is not *[]byte", EncodingRaw, ptr)
}

// JSONConverter encodes any value with encoding/json.
type JSONConverter struct{}

func (JSONConverter) Encoding() string { return EncodingJSON }

func (JSONConverter) ToPayload(v any) (Payload, bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, false, fmt.Errorf("encode %s: %w", EncodingJSON, err)
	}
	return Payload{Encoding: EncodingJSON, Data: data}, true, nil
}

func (JSONConverter) FromPayload(p Payload, ptr any) error {
	if err := json.Unmarshal(p.Data, ptr); err != nil {
		return fmt.Errorf("decode %s: %w", EncodingJSON, err)
	}
	return nil
}

// MsgpackConverter encodes any value as MessagePack.
type MsgpackConverter struct{}

func (MsgpackConverter) Encoding() string { return EncodingMsgpack }

func (MsgpackConverter) ToPayload(v any) (Payload, bool, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Payload{}, false, fmt.Errorf("encode %s: %w", EncodingMsgpack, err)
	}
	return Payload{Encoding: EncodingMsgpack, Data: data}, true, nil
}

func (MsgpackConverter) FromPayload(p Payload, ptr any) error {
	if err := msgpack.Unmarshal(p.Data, ptr); err != nil {
		return fmt.Errorf("decode %s: %w", EncodingMsgpack, err)
	}
	return nil
}

// GetConverter returns the data converter named by the config.
// "msgpack" prefers MessagePack; anything else yields DefaultConverter.
// Both decode payloads of every known encoding.
func GetConverter(name string) *DataConverter {
	switch name {
	case "msgpack":
		return NewDataConverter(NullConverter{}, RawConverter{}, MsgpackConverter{}, JSONConverter{})
	default:
		return NewDataConverter(NullConverter{}, RawConverter{}, JSONConverter{}, MsgpackConverter{})
	}
}
