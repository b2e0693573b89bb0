// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"code.hybscloud.com/durable"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WebSocket carries one Packet per binary message.
type WebSocket struct {
	conn  net.Conn
	state ws.State

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ durable.Transport = (*WebSocket)(nil)

// Dial connects to a host at url as a WebSocket client.
func Dial(ctx context.Context, url string) (*WebSocket, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &WebSocket{conn: conn, state: ws.StateClientSide}, nil
}

// Upgrade accepts a WebSocket connection from a worker on the host side.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocket, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return &WebSocket{conn: conn, state: ws.StateServerSide}, nil
}

// Receive reads the next binary message. Text messages are rejected and a
// close frame yields durable.ErrClosed.
func (c *WebSocket) Receive(ctx context.Context) (durable.Packet, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()
	data, op, err := wsutil.ReadData(c.conn, c.state)
	if err != nil {
		if ctx.Err() != nil {
			return durable.Packet{}, ctx.Err()
		}
		var closed wsutil.ClosedError
		if errors.As(err, &closed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return durable.Packet{}, durable.ErrClosed
		}
		return durable.Packet{}, fmt.Errorf("websocket read: %w", err)
	}
	if op != ws.OpBinary {
		return durable.Packet{}, fmt.Errorf("%w: websocket opcode %v", durable.ErrMalformedFrame, op)
	}
	return unmarshal(data)
}

// Send writes p as one binary message.
func (c *WebSocket) Send(_ context.Context, p durable.Packet) error {
	b, err := marshal(p)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteMessage(c.conn, c.state, ws.OpBinary, b)
}

// Close sends a normal close frame and closes the connection.
func (c *WebSocket) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteMessage(c.conn, c.state, ws.OpClose, body)
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
