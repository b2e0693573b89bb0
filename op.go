// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/kont"
)

// ErrForeignFuture reports an await on a Future owned by another scheduler
// or already torn down.
var ErrForeignFuture = errors.New("durable: future not owned by this scheduler")

// ErrInvalidRequest reports a call without a command name.
var ErrInvalidRequest = errors.New("durable: invalid request")

var errEmptySelect = errors.New("durable: select on an empty set")

// Call is the effect operation for issuing a request and waiting for its
// response. Perform(Call{Request: r}) resumes with the call's Result.
type Call struct {
	kont.Phantom[Result]
	Request *Request
}

// DispatchScheduler issues the request and blocks until it resolves.
func (c Call) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	f, err := ctx.s.issue(ctx.t, c.Request)
	if err != nil {
		return nil, false, err
	}
	return ctx.await(f)
}

// Start is the effect operation for issuing a request without waiting.
// Perform(Start{Request: r}) resumes immediately with the call's Future.
type Start struct {
	kont.Phantom[*Future]
	Request *Request
}

// DispatchScheduler issues the request. Never blocks.
func (c Start) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	f, err := ctx.s.issue(ctx.t, c.Request)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// Await is the effect operation for waiting on a Future.
// Perform(Await{Future: f}) resumes with f's Result.
type Await struct {
	kont.Phantom[Result]
	Future *Future
}

// DispatchScheduler resumes at once when the Future is resolved and blocks
// otherwise.
func (a Await) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	return ctx.await(a.Future)
}

// Select is the effect operation for waiting on the first of several
// Futures. Perform(Select{Futures: fs}) resumes with the index of the first
// Future to resolve; among already resolved Futures the lowest index wins.
type Select struct {
	kont.Phantom[int]
	Futures []*Future
}

// DispatchScheduler blocks on every pending Future of the set. An empty set
// or a foreign Future is fatal.
func (sel Select) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	if len(sel.Futures) == 0 {
		return nil, false, &FatalError{Err: errEmptySelect}
	}
	for i, f := range sel.Futures {
		if !ctx.s.owns(f) {
			return nil, false, &FatalError{Err: fmt.Errorf("select %d: %w", i, ErrForeignFuture)}
		}
		if f.done {
			return i, true, nil
		}
	}
	for i, f := range sel.Futures {
		ctx.block(f, i)
	}
	return nil, false, nil
}

// Nested is the effect operation for running a child coroutine on top of
// the current one. The parent does not resume until the child's frame is
// popped. Perform(Nested{Body: b}) resumes with the child's Result.
type Nested struct {
	kont.Phantom[Result]
	Body kont.Expr[Result]
}

// DispatchScheduler pushes a frame for the child.
func (n Nested) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	parent := ctx.f
	ctx.t.push(n.Body, func(r Result) error {
		parent.resume(r)
		return nil
	})
	return nil, false, nil
}

// Spawn is the effect operation for starting a sibling coroutine. The child
// inherits the current header and runs until its first suspension before
// the parent continues. Perform(Spawn{Body: b}) resumes with the child's
// Future.
type Spawn struct {
	kont.Phantom[*Future]
	Body kont.Expr[Result]
}

// DispatchScheduler creates and starts the child task.
func (sp Spawn) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	child := ctx.s.newTask(sp.Body, ctx.t.header)
	ctx.s.drive(child)
	return child.future, true, nil
}

// Now is the effect operation for reading the host's tick time.
// The value only changes between batches, so replays observe the same time.
type Now struct {
	kont.Phantom[time.Time]
}

// DispatchScheduler returns the current tick time. Never blocks.
func (Now) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	return ctx.s.tick.Time, true, nil
}

// GetHeader is the effect operation for reading the coroutine's header.
type GetHeader struct {
	kont.Phantom[Header]
}

// DispatchScheduler returns a copy of the header. Never blocks.
func (GetHeader) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	h := ctx.t.header.Clone()
	if h == nil {
		h = Header{}
	}
	return h, true, nil
}

// SetHeader is the effect operation for setting one header value on the
// current coroutine. Coroutines spawned afterwards inherit it.
type SetHeader struct {
	kont.Phantom[struct{}]
	Key   string
	Value Payload
}

// DispatchScheduler updates the header. Never blocks.
func (sh SetHeader) DispatchScheduler(ctx *dispatchContext) (kont.Resumed, bool, error) {
	h := ctx.t.header.Clone()
	if h == nil {
		h = make(Header, 1)
	}
	h[sh.Key] = sh.Value
	ctx.t.header = h
	return struct{}{}, true, nil
}
