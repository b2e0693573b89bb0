// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// pipeCapacity is the bounded capacity of each pipe direction.
const pipeCapacity = 64

// PipeEnd is one side of an in-memory Transport pair. Each direction is a
// bounded single-producer single-consumer queue: at most one goroutine may
// Send and one may Receive on a PipeEnd at a time.
type PipeEnd struct {
	sendQ  *lfq.SPSC[Packet]
	recvQ  *lfq.SPSC[Packet]
	closed *atomix.Uint32
	serial uint32
}

// pipePair holds both ends, both queues and the shared close flag in a
// single allocation.
type pipePair struct {
	a, b   PipeEnd
	closed atomix.Uint32
	ab     lfq.SPSC[Packet]
	ba     lfq.SPSC[Packet]
}

var pipes Sequence

// NewPipe creates a connected pair of in-memory Transports.
func NewPipe() (*PipeEnd, *PipeEnd) {
	s := pipes.Next()
	p := &pipePair{}
	p.ab.Init(pipeCapacity)
	p.ba.Init(pipeCapacity)
	p.a = PipeEnd{sendQ: &p.ab, recvQ: &p.ba, closed: &p.closed, serial: s}
	p.b = PipeEnd{sendQ: &p.ba, recvQ: &p.ab, closed: &p.closed, serial: s}
	return &p.a, &p.b
}

var _ Transport = (*PipeEnd)(nil)

// Serial returns the number shared by both ends of the pipe.
func (e *PipeEnd) Serial() uint32 { return e.serial }

// TrySend enqueues p without blocking. It returns iox.ErrWouldBlock when
// the queue is full.
func (e *PipeEnd) TrySend(p Packet) error {
	if e.closed.Load() != 0 {
		return ErrClosed
	}
	return e.sendQ.Enqueue(&p)
}

// TryReceive dequeues a Packet without blocking. It returns
// iox.ErrWouldBlock when the queue is empty, and ErrClosed once the pipe is
// closed and drained.
func (e *PipeEnd) TryReceive() (Packet, error) {
	p, err := e.recvQ.Dequeue()
	if err == nil {
		return p, nil
	}
	if iox.IsWouldBlock(err) && e.closed.Load() != 0 {
		return Packet{}, ErrClosed
	}
	return Packet{}, err
}

// Send enqueues p, backing off while the queue is full.
func (e *PipeEnd) Send(ctx context.Context, p Packet) error {
	var bo iox.Backoff
	for {
		err := e.TrySend(p)
		if !errors.Is(err, iox.ErrWouldBlock) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// Receive dequeues the next Packet, backing off while the queue is empty.
func (e *PipeEnd) Receive(ctx context.Context) (Packet, error) {
	var bo iox.Backoff
	for {
		p, err := e.TryReceive()
		if !errors.Is(err, iox.ErrWouldBlock) {
			return p, err
		}
		if err := ctx.Err(); err != nil {
			return Packet{}, err
		}
		bo.Wait()
	}
}

// Close closes both ends. Packets already queued can still be received.
func (e *PipeEnd) Close() error {
	e.closed.Add(1)
	return nil
}
