// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ID correlates a Request with its response.
type ID = uint32

// NoID is never assigned to a Request. A Failure carrying NoID has no
// corresponding call and is fatal to the receiver.
const NoID ID = 0

// MaxID is the largest id representable on the wire.
const MaxID = math.MaxUint32

// Command is one protocol message: *Request, *Success or *Failure.
// The set is closed; switches over Command must handle exactly these three.
type Command interface {
	CommandID() ID
	command()
}

// Request asks the far side to perform the named operation.
type Request struct {
	ID       ID
	Name     string
	Options  Options
	Payloads Payloads
	Header   Header

	// Tick is the host tick the request arrived with. It is populated from
	// batch headers on decode and is never encoded.
	Tick Tick
}

// Success is the terminal response carrying a call's result.
type Success struct {
	ID     ID
	Result Payloads
}

// Failure is the terminal response carrying a structured error.
type Failure struct {
	ID      ID
	Code    int
	Message string
	Data    Payloads
}

func (r *Request) CommandID() ID { return r.ID }
func (s *Success) CommandID() ID { return s.ID }
func (f *Failure) CommandID() ID { return f.ID }

func (*Request) command() {}
func (*Success) command() {}
func (*Failure) command() {}

// Fatal reports whether f has no corresponding call.
func (f *Failure) Fatal() bool { return f.ID == NoID }

// Err converts f to the error injected into the awaiting coroutine.
func (f *Failure) Err() error {
	if f.Code == CodeCanceled {
		return &CanceledError{Reason: f.Message}
	}
	return &RemoteError{Code: f.Code, Message: f.Message, Data: f.Data}
}

// Tick is the host's logical clock for one batch.
type Tick struct {
	Time          time.Time
	HistoryLength int
	Replay        bool
}

// Batch header keys carrying Tick fields.
const (
	HeaderTickTime      = "tick_time"
	HeaderHistoryLength = "history_length"
	HeaderReplay        = "replay"
)

// ParseTick reads a Tick from batch headers. Absent keys leave zero values.
func ParseTick(headers map[string]string) (Tick, error) {
	var t Tick
	if v, ok := headers[HeaderTickTime]; ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Tick{}, malformed("header %s: %v", HeaderTickTime, err)
		}
		t.Time = ts.UTC()
	}
	if v, ok := headers[HeaderHistoryLength]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Tick{}, malformed("header %s: %q", HeaderHistoryLength, v)
		}
		t.HistoryLength = n
	}
	if v, ok := headers[HeaderReplay]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Tick{}, malformed("header %s: %q", HeaderReplay, v)
		}
		t.Replay = b
	}
	return t, nil
}

// Headers renders t as batch headers.
func (t Tick) Headers() map[string]string {
	h := make(map[string]string, 3)
	if !t.Time.IsZero() {
		h[HeaderTickTime] = t.Time.UTC().Format(time.RFC3339Nano)
	}
	h[HeaderHistoryLength] = strconv.Itoa(t.HistoryLength)
	h[HeaderReplay] = strconv.FormatBool(t.Replay)
	return h
}

// Shared record validation used by every codec.

// checkID validates a decoded id against the 32-bit unsigned wire range.
func checkID(v uint64) (ID, error) {
	if v > MaxID {
		return 0, malformed("id %d out of range", v)
	}
	return ID(v), nil
}

// checkIDNumber validates a textual id: an integer in [0, MaxID].
func checkIDNumber(s string) (ID, error) {
	if s == "" {
		return 0, malformed("missing id")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, malformed("id %q is not a non-negative integer", s)
	}
	return checkID(v)
}

// validate reports whether c is a legal Command.
func validate(c Command) error {
	switch c := c.(type) {
	case *Request:
		if c.ID == NoID {
			return malformed("request %q without id", c.Name)
		}
		if c.Name == "" {
			return malformed("request %d without command name", c.ID)
		}
	case *Success:
		if c.ID == NoID {
			return malformed("success without id")
		}
	case *Failure:
	case nil:
		return malformed("nil command")
	default:
		panic(fmt.Sprintf("durable: unhandled command %T", c))
	}
	return nil
}

// recordKind classifies a wire record by the fields it carries.
type recordKind uint8

const (
	kindNone recordKind = iota
	kindRequest
	kindSuccess
	kindFailure
)

// classify picks exactly one command kind for a record.
func classify(hasCommand, hasError, hasResult bool) (recordKind, error) {
	n := 0
	k := kindNone
	if hasCommand {
		n, k = n+1, kindRequest
	}
	if hasError {
		n, k = n+1, kindFailure
	}
	if hasResult {
		n, k = n+1, kindSuccess
	}
	switch n {
	case 0:
		return kindNone, malformed("record carries no command, error or result")
	case 1:
		return k, nil
	default:
		return kindNone, malformed("record carries more than one of command, error, result")
	}
}

func nilIfEmpty(p Payloads) Payloads {
	if len(p) == 0 {
		return nil
	}
	for i := range p {
		if len(p[i].Data) == 0 {
			p[i].Data = nil
		}
	}
	return p
}
