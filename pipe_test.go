// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/durable"
)

func TestPipeSendReceive(t *testing.T) {
	skipRace(t)
	a, b := durable.NewPipe()
	ctx := context.Background()

	want := durable.Packet{Header: map[string]string{"k": "v"}, Body: []byte("hello")}
	if err := a.Send(ctx, want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got.Body) != "hello" || got.Header["k"] != "v" {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	// The other direction is independent.
	if err := b.Send(ctx, durable.Packet{Body: []byte("back")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err = a.Receive(ctx)
	if err != nil || string(got.Body) != "back" {
		t.Fatalf("got %q %v, want back", got.Body, err)
	}
}

func TestPipeFIFOAcrossGoroutines(t *testing.T) {
	skipRace(t)
	a, b := durable.NewPipe()
	ctx := context.Background()
	const n = 1000

	done := make(chan error, 1)
	go func() {
		for i := range n {
			if err := a.Send(ctx, durable.Packet{Body: []byte(fmt.Sprint(i))}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := range n {
		p, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if string(p.Body) != fmt.Sprint(i) {
			t.Fatalf("got %q, want %d", p.Body, i)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("sender: %v", err)
	}
}

func TestPipeTryReceiveEmpty(t *testing.T) {
	_, b := durable.NewPipe()
	if _, err := b.TryReceive(); !iox.IsWouldBlock(err) {
		t.Fatalf("got %v, want would block", err)
	}
}

func TestPipeFull(t *testing.T) {
	a, _ := durable.NewPipe()
	var err error
	for range 1 << 12 {
		if err = a.TrySend(durable.Packet{}); err != nil {
			break
		}
	}
	if !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("got %v, want would block on a full pipe", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := a.Send(ctx, durable.Packet{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestPipeClose(t *testing.T) {
	skipRace(t)
	a, b := durable.NewPipe()
	ctx := context.Background()
	if err := a.Send(ctx, durable.Packet{Body: []byte("last")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Send(ctx, durable.Packet{}); !errors.Is(err, durable.ErrClosed) {
		t.Fatalf("Send after close got %v, want ErrClosed", err)
	}
	// Queued packets survive the close.
	p, err := b.Receive(ctx)
	if err != nil || string(p.Body) != "last" {
		t.Fatalf("got %q %v, want last", p.Body, err)
	}
	if _, err := b.Receive(ctx); !errors.Is(err, durable.ErrClosed) {
		t.Fatalf("Receive after drain got %v, want ErrClosed", err)
	}
}

func TestPipeReceiveCanceled(t *testing.T) {
	_, b := durable.NewPipe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context canceled", err)
	}
}

func TestPacketClone(t *testing.T) {
	p := durable.Packet{Header: map[string]string{"a": "1"}, Body: []byte("x")}
	c := p.Clone()
	c.Header["a"] = "2"
	c.Body[0] = 'y'
	if p.Header["a"] != "1" || string(p.Body) != "x" {
		t.Fatalf("clone shares memory with the original: %+v", p)
	}
}
