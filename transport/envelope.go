// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport provides byte-oriented Transports for a durable
// worker: a length-prefixed stream over any io.ReadWriteCloser (pipes,
// sockets, process stdio) and a WebSocket connection.
//
// Both carry a Packet as a MessagePack envelope of the batch headers and
// the encoded command batch.
package transport

import (
	"fmt"

	"code.hybscloud.com/durable"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the wire form of a durable.Packet.
type envelope struct {
	Header map[string]string `msgpack:"h,omitempty"`
	Body   []byte            `msgpack:"b"`
}

func marshal(p durable.Packet) ([]byte, error) {
	b, err := msgpack.Marshal(envelope{Header: p.Header, Body: p.Body})
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	return b, nil
}

func unmarshal(b []byte) (durable.Packet, error) {
	var e envelope
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return durable.Packet{}, fmt.Errorf("%w: packet envelope: %v", durable.ErrMalformedFrame, err)
	}
	return durable.Packet{Header: e.Header, Body: e.Body}, nil
}
