// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ProtoCodec is the compact binary codec. Each command is a protobuf wire
// record, and every record is length-prefixed with a varint.
//
//	record  = 1:id varint, 2:command string, 3:options bytes(JSON),
//	          4:error{1:code varint, 2:message string, 3:data Payload*},
//	          5:payloads Payload*, 6:header{1:key string, 2:value Payload}*,
//	          7:result varint(1)
//	Payload = 1:encoding string, 2:data bytes
type ProtoCodec struct{}

const (
	fieldID       protowire.Number = 1
	fieldCommand  protowire.Number = 2
	fieldOptions  protowire.Number = 3
	fieldError    protowire.Number = 4
	fieldPayloads protowire.Number = 5
	fieldHeader   protowire.Number = 6
	fieldResult   protowire.Number = 7

	fieldErrCode    protowire.Number = 1
	fieldErrMessage protowire.Number = 2
	fieldErrData    protowire.Number = 3

	fieldPayloadEncoding protowire.Number = 1
	fieldPayloadData     protowire.Number = 2

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
)

func (ProtoCodec) Encode(commands []Command) ([]byte, error) {
	var out []byte
	for i, c := range commands {
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("encode command %d: %w", i, err)
		}
		rec, err := appendRecord(nil, c)
		if err != nil {
			return nil, fmt.Errorf("encode command %d: %w", i, err)
		}
		out = protowire.AppendBytes(out, rec)
	}
	return out, nil
}

func appendRecord(b []byte, c Command) ([]byte, error) {
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.CommandID()))
	switch c := c.(type) {
	case *Request:
		opts, err := json.Marshal(c.Options)
		if err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
		b = protowire.AppendTag(b, fieldCommand, protowire.BytesType)
		b = protowire.AppendString(b, c.Name)
		b = protowire.AppendTag(b, fieldOptions, protowire.BytesType)
		b = protowire.AppendBytes(b, opts)
		b = appendPayloads(b, fieldPayloads, c.Payloads)
		for _, k := range sortedKeys(c.Header) {
			var entry []byte
			entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
			entry = protowire.AppendString(entry, k)
			entry = protowire.AppendTag(entry, fieldEntryValue, protowire.BytesType)
			entry = protowire.AppendBytes(entry, appendPayload(nil, c.Header[k]))
			b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
			b = protowire.AppendBytes(b, entry)
		}
	case *Success:
		b = appendPayloads(b, fieldPayloads, c.Result)
		b = protowire.AppendTag(b, fieldResult, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	case *Failure:
		var e []byte
		e = protowire.AppendTag(e, fieldErrCode, protowire.VarintType)
		e = protowire.AppendVarint(e, protowire.EncodeZigZag(int64(c.Code)))
		e = protowire.AppendTag(e, fieldErrMessage, protowire.BytesType)
		e = protowire.AppendString(e, c.Message)
		e = appendPayloads(e, fieldErrData, c.Data)
		b = protowire.AppendTag(b, fieldError, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	}
	return b, nil
}

func appendPayloads(b []byte, num protowire.Number, ps Payloads) []byte {
	for _, p := range ps {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPayload(nil, p))
	}
	return b
}

func appendPayload(b []byte, p Payload) []byte {
	b = protowire.AppendTag(b, fieldPayloadEncoding, protowire.BytesType)
	b = protowire.AppendString(b, p.Encoding)
	if len(p.Data) > 0 {
		b = protowire.AppendTag(b, fieldPayloadData, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Data)
	}
	return b
}

func (ProtoCodec) Decode(data []byte, headers map[string]string) ([]Command, error) {
	var out []Command
	for len(data) > 0 {
		rec, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, malformed("frame %d: %v", len(out), protowire.ParseError(n))
		}
		data = data[n:]
		c, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", len(out), err)
		}
		out = append(out, c)
	}
	if err := stampTick(out, headers); err != nil {
		return nil, err
	}
	return out, nil
}

// protoRecord accumulates decoded fields before classification.
type protoRecord struct {
	id         uint64
	hasID      bool
	command    string
	hasCommand bool
	options    []byte
	payloads   Payloads
	header     Header
	failure    *Failure
	result     bool
}

// Wire types of the known fields; a known field arriving with another
// type is malformed.
var (
	recordTypes = map[protowire.Number]protowire.Type{
		fieldID:       protowire.VarintType,
		fieldCommand:  protowire.BytesType,
		fieldOptions:  protowire.BytesType,
		fieldError:    protowire.BytesType,
		fieldPayloads: protowire.BytesType,
		fieldHeader:   protowire.BytesType,
		fieldResult:   protowire.VarintType,
	}
	failureTypes = map[protowire.Number]protowire.Type{
		fieldErrCode:    protowire.VarintType,
		fieldErrMessage: protowire.BytesType,
		fieldErrData:    protowire.BytesType,
	}
)

func checkType(types map[protowire.Number]protowire.Type, num protowire.Number, typ protowire.Type) error {
	if want, ok := types[num]; ok && typ != want {
		return malformed("field %d: wire type %d, want %d", num, typ, want)
	}
	return nil
}

func decodeRecord(b []byte) (Command, error) {
	var r protoRecord
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if err := checkType(recordTypes, num, typ); err != nil {
			return err
		}
		switch num {
		case fieldID:
			r.id, r.hasID = u, true
		case fieldCommand:
			r.command, r.hasCommand = string(v), true
		case fieldOptions:
			r.options = v
		case fieldPayloads:
			p, err := decodePayload(v)
			if err != nil {
				return err
			}
			r.payloads = append(r.payloads, p)
		case fieldHeader:
			k, p, err := decodeEntry(v)
			if err != nil {
				return err
			}
			if r.header == nil {
				r.header = make(Header)
			}
			r.header[k] = p
		case fieldError:
			f, err := decodeFailure(v)
			if err != nil {
				return err
			}
			r.failure = f
		case fieldResult:
			r.result = u != 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !r.hasID {
		return nil, malformed("missing id")
	}
	id, err := checkID(r.id)
	if err != nil {
		return nil, err
	}
	kind, err := classify(r.hasCommand, r.failure != nil, r.result)
	if err != nil {
		return nil, err
	}
	var c Command
	switch kind {
	case kindRequest:
		req := &Request{ID: id, Name: r.command, Payloads: nilIfEmpty(r.payloads), Header: r.header}
		if len(r.options) > 0 {
			if err := json.Unmarshal(r.options, &req.Options); err != nil {
				return nil, malformed("options: %v", err)
			}
		}
		c = req
	case kindFailure:
		r.failure.ID = id
		c = r.failure
	case kindSuccess:
		c = &Success{ID: id, Result: nilIfEmpty(r.payloads)}
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeFailure(b []byte) (*Failure, error) {
	f := &Failure{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if err := checkType(failureTypes, num, typ); err != nil {
			return err
		}
		switch num {
		case fieldErrCode:
			f.Code = int(protowire.DecodeZigZag(u))
		case fieldErrMessage:
			f.Message = string(v)
		case fieldErrData:
			p, err := decodePayload(v)
			if err != nil {
				return err
			}
			f.Data = append(f.Data, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.Data = nilIfEmpty(f.Data)
	return f, nil
}

func decodePayload(b []byte) (Payload, error) {
	var p Payload
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldPayloadEncoding:
			p.Encoding = string(v)
		case fieldPayloadData:
			p.Data = append([]byte(nil), v...)
		}
		return nil
	})
	return p, err
}

func decodeEntry(b []byte) (string, Payload, error) {
	var (
		key string
		val Payload
	)
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldEntryKey:
			key = string(v)
		case fieldEntryValue:
			p, err := decodePayload(v)
			if err != nil {
				return err
			}
			val = p
		}
		return nil
	})
	return key, val, err
}

// walkFields visits every field of a record. Varint fields arrive in u,
// length-delimited fields in v. Unknown wire types are skipped.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			u, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(m))
			}
			b = b[m:]
			if err := visit(num, typ, nil, u); err != nil {
				return err
			}
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(m))
			}
			b = b[m:]
			if err := visit(num, typ, v, 0); err != nil {
				return err
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}

func (ProtoCodec) Name() string { return CodecNameProto }
