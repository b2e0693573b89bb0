// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"maps"
)

// Packet is one batch on the wire: the encoded Commands plus the host's
// batch headers (tick time, history length, replay flag).
type Packet struct {
	Header map[string]string
	Body   []byte
}

// Clone returns a deep copy of p.
func (p Packet) Clone() Packet {
	return Packet{Header: maps.Clone(p.Header), Body: append([]byte(nil), p.Body...)}
}

// Transport moves Packets between the worker and the host.
// Receive blocks until a Packet arrives, ctx is done, or the peer closes,
// in which case it returns ErrClosed. Implementations need only support
// one receiving and one sending goroutine.
type Transport interface {
	Receive(ctx context.Context) (Packet, error)
	Send(ctx context.Context, p Packet) error
	Close() error
}
