// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONCodec is the line-oriented text codec: one JSON record per line.
type JSONCodec struct{}

// jsonRecord is the wire shape of one command. Pointer and RawMessage fields
// distinguish absent from empty. ID stays raw so a quoted id is rejected.
type jsonRecord struct {
	ID       json.RawMessage `json:"id"`
	Command  string          `json:"command,omitempty"`
	Options  *Options        `json:"options,omitempty"`
	Payloads Payloads        `json:"payloads,omitempty"`
	Header   Header          `json:"header,omitempty"`
	Error    *jsonError      `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

type jsonError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    Payloads `json:"data,omitempty"`
}

var emptyResult = json.RawMessage("[]")

func (JSONCodec) Encode(commands []Command) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, c := range commands {
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("encode command %d: %w", i, err)
		}
		rec := jsonRecord{ID: json.RawMessage(fmt.Sprint(c.CommandID()))}
		switch c := c.(type) {
		case *Request:
			opts := c.Options
			rec.Command = c.Name
			rec.Options = &opts
			rec.Payloads = c.Payloads
			rec.Header = c.Header
		case *Success:
			rec.Result = emptyResult
			if len(c.Result) > 0 {
				raw, err := json.Marshal(c.Result)
				if err != nil {
					return nil, fmt.Errorf("encode command %d: %w", i, err)
				}
				rec.Result = raw
			}
		case *Failure:
			rec.Error = &jsonError{Code: c.Code, Message: c.Message, Data: c.Data}
		}
		// Encoder.Encode terminates each record with a newline.
		if err := enc.Encode(&rec); err != nil {
			return nil, fmt.Errorf("encode command %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func (JSONCodec) Decode(data []byte, headers map[string]string) ([]Command, error) {
	var out []Command
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		c, err := decodeJSONRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, malformed("scan batch: %v", err)
	}
	if err := stampTick(out, headers); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSONRecord(raw []byte) (Command, error) {
	var rec jsonRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, malformed("%v", err)
	}
	id, err := checkIDNumber(string(rec.ID))
	if err != nil {
		return nil, err
	}
	kind, err := classify(rec.Command != "", rec.Error != nil, rec.Result != nil)
	if err != nil {
		return nil, err
	}
	var c Command
	switch kind {
	case kindRequest:
		r := &Request{ID: id, Name: rec.Command, Payloads: nilIfEmpty(rec.Payloads), Header: rec.Header.Clone()}
		if rec.Options != nil {
			r.Options = *rec.Options
		}
		c = r
	case kindFailure:
		c = &Failure{ID: id, Code: rec.Error.Code, Message: rec.Error.Message, Data: nilIfEmpty(rec.Error.Data)}
	case kindSuccess:
		var result Payloads
		if err := json.Unmarshal(rec.Result, &result); err != nil {
			return nil, malformed("result: %v", err)
		}
		c = &Success{ID: id, Result: nilIfEmpty(result)}
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (JSONCodec) Name() string { return CodecNameJSON }
