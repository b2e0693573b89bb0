// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport_test

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/durable"
	"code.hybscloud.com/durable/transport"
)

func streamPair(t *testing.T, opts ...transport.StreamOption) (*transport.Stream, *transport.Stream) {
	t.Helper()
	a, b := net.Pipe()
	sa, sb := transport.NewStream(a, opts...), transport.NewStream(b, opts...)
	t.Cleanup(func() {
		_ = sa.Close()
		_ = sb.Close()
	})
	return sa, sb
}

// sendAsync sends p on s from another goroutine; net.Pipe writes block
// until the peer reads.
func sendAsync(s durable.Transport, p durable.Packet) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Send(context.Background(), p) }()
	return errc
}

func TestStreamRoundTrip(t *testing.T) {
	a, b := streamPair(t)
	ctx := context.Background()

	want := durable.Packet{
		Header: durable.Tick{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), HistoryLength: 3}.Headers(),
		Body:   []byte(`{"id":1,"command":"x","options":{}}` + "\n"),
	}
	errc := sendAsync(a, want)
	got, err := b.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, want, got)

	// Frames stay separate when several are queued.
	errc = sendAsync(b, durable.Packet{Body: []byte("one")})
	p, err := a.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, "one", string(p.Body))
	assert.Empty(t, p.Header)
}

func TestStreamPeerClosed(t *testing.T) {
	a, b := streamPair(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close")
	_, err := b.Receive(context.Background())
	assert.ErrorIs(t, err, durable.ErrClosed)
}

func TestStreamReceiveCanceled(t *testing.T) {
	_, b := streamPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamFrameTooLarge(t *testing.T) {
	a, b := net.Pipe()
	small := transport.NewStream(b, transport.WithMaxFrame(8))
	big := transport.NewStream(a)
	t.Cleanup(func() {
		_ = small.Close()
		_ = big.Close()
	})
	_ = sendAsync(big, durable.Packet{Body: make([]byte, 64)})
	_, err := small.Receive(context.Background())
	assert.ErrorIs(t, err, durable.ErrMalformedFrame)

	err = small.Send(context.Background(), durable.Packet{Body: make([]byte, 64)})
	assert.ErrorContains(t, err, "exceeds")
}

func TestStreamMalformed(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		a, b := net.Pipe()
		s := transport.NewStream(b)
		t.Cleanup(func() { _ = s.Close() })
		go func() {
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], 10)
			_, _ = a.Write(hdr[:])
			_, _ = a.Write([]byte("abc"))
			_ = a.Close()
		}()
		_, err := s.Receive(context.Background())
		assert.ErrorIs(t, err, durable.ErrMalformedFrame)
	})
	t.Run("envelope", func(t *testing.T) {
		a, b := net.Pipe()
		s := transport.NewStream(b)
		t.Cleanup(func() {
			_ = s.Close()
			_ = a.Close()
		})
		go func() {
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], 1)
			_, _ = a.Write(append(hdr[:], 0xc1))
		}()
		_, err := s.Receive(context.Background())
		assert.True(t, errors.Is(err, durable.ErrMalformedFrame), "got %v", err)
	})
}

func TestWorkerOverStream(t *testing.T) {
	host, conn := streamPair(t)
	reg := durable.NewRegistry()
	require.NoError(t, reg.RegisterActivity("len", func(_ context.Context, args durable.Payloads) (durable.Payloads, error) {
		var s string
		if err := args.Decode(&s); err != nil {
			return nil, err
		}
		return durable.DefaultConverter.ToPayloads(len(s))
	}))
	w := durable.NewWorker(conn, reg, durable.WithCodec(durable.ProtoCodec{}))
	errc := make(chan error, 1)
	go func() { errc <- w.Run(context.Background()) }()

	codec := durable.ProtoCodec{}
	args, err := durable.DefaultConverter.ToPayloads("four")
	require.NoError(t, err)
	body, err := codec.Encode([]durable.Command{&durable.Request{
		ID:       5,
		Name:     durable.CommandInvokeActivity,
		Options:  durable.NewOptions(durable.OptionName, "len"),
		Payloads: args,
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, host.Send(ctx, durable.Packet{Body: body}))

	var replies []durable.Command
	for len(replies) == 0 {
		p, err := host.Receive(ctx)
		require.NoError(t, err)
		cmds, err := codec.Decode(p.Body, p.Header)
		require.NoError(t, err)
		replies = append(replies, cmds...)
	}
	require.Len(t, replies, 1)
	ok, isSuccess := replies[0].(*durable.Success)
	require.True(t, isSuccess, "got %T", replies[0])
	assert.Equal(t, durable.ID(5), ok.ID)
	var n int
	require.NoError(t, ok.Result.Decode(&n))
	assert.Equal(t, 4, n)

	require.NoError(t, host.Close())
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
