// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/durable"
)

// DefaultMaxFrame bounds a single Stream frame.
const DefaultMaxFrame = 64 << 20

// Stream frames Packets over a byte stream. Each frame is a 4-byte
// big-endian length followed by the envelope.
type Stream struct {
	rwc      io.ReadWriteCloser
	r        *bufio.Reader
	maxFrame int

	wmu sync.Mutex
	w   *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

var _ durable.Transport = (*Stream)(nil)

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithMaxFrame sets the largest frame Receive accepts.
func WithMaxFrame(n int) StreamOption {
	return func(s *Stream) { s.maxFrame = n }
}

// NewStream returns a Stream over rwc. The Stream owns rwc.
func NewStream(rwc io.ReadWriteCloser, opts ...StreamOption) *Stream {
	s := &Stream{
		rwc:      rwc,
		r:        bufio.NewReader(rwc),
		w:        bufio.NewWriter(rwc),
		maxFrame: DefaultMaxFrame,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Receive reads the next frame. End of stream yields durable.ErrClosed.
// On a net.Conn, ctx cancellation interrupts a blocked read.
func (s *Stream) Receive(ctx context.Context) (durable.Packet, error) {
	if c, ok := s.rwc.(net.Conn); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.SetReadDeadline(time.Now()) })
		defer stop()
	}
	var hdr [4]byte
	if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
		return durable.Packet{}, s.readErr(ctx, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int64(n) > int64(s.maxFrame) {
		return durable.Packet{}, fmt.Errorf("%w: frame of %d bytes exceeds %d", durable.ErrMalformedFrame, n, s.maxFrame)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return durable.Packet{}, s.readErr(ctx, err)
	}
	return unmarshal(buf)
}

func (s *Stream) readErr(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return durable.ErrClosed
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: truncated frame", durable.ErrMalformedFrame)
	}
	return err
}

// Send writes one frame and flushes it.
func (s *Stream) Send(_ context.Context, p durable.Packet) error {
	b, err := marshal(p)
	if err != nil {
		return err
	}
	if len(b) > s.maxFrame {
		return fmt.Errorf("send: frame of %d bytes exceeds %d", len(b), s.maxFrame)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close closes the underlying stream once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.rwc.Close() })
	return s.closeErr
}
