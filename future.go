// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import "errors"

// Result is the outcome of a coroutine or of an outstanding call.
// For calls, Value holds the response Payloads.
type Result struct {
	Value any
	Err   error
}

// Ok returns a successful Result.
func Ok(v any) Result { return Result{Value: v} }

// Fail returns a failed Result.
func Fail(err error) Result { return Result{Err: err} }

// Payloads returns Value as Payloads, or nil.
func (r Result) Payloads() Payloads {
	p, _ := r.Value.(Payloads)
	return p
}

// Decode decodes a call result into ptrs. It returns r.Err first.
func (r Result) Decode(ptrs ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return r.Payloads().Decode(ptrs...)
}

var errSettled = errors.New("future settled twice")

// Future is an awaitable handle. A call Future resolves when its response
// arrives; a coroutine Future resolves when the spawned coroutine finishes.
type Future struct {
	id      ID
	owner   *Scheduler
	done    bool
	result  Result
	waiters []waiter
}

// waiter is a task suspended on a Future. index is the position of the
// Future inside a Select, or -1 for a plain Await.
type waiter struct {
	t     *task
	index int
}

// ID returns the local correlation id of a call Future, or NoID.
func (f *Future) ID() ID { return f.id }

// Done reports whether f is resolved.
func (f *Future) Done() bool { return f.done }

// Result returns the resolved result. ok is false while pending.
func (f *Future) Result() (r Result, ok bool) { return f.result, f.done }

func (f *Future) settle(r Result) error {
	if f.done {
		return errSettled
	}
	f.done, f.result = true, r
	return nil
}

// takeWaiters returns and clears the waiters of a settled Future.
func (f *Future) takeWaiters() []waiter {
	ws := f.waiters
	f.waiters = nil
	return ws
}

func (f *Future) wait(t *task, index int) {
	f.waiters = append(f.waiters, waiter{t: t, index: index})
}

// unwait removes t from the waiter list, keeping order.
func (f *Future) unwait(t *task) {
	ws := f.waiters[:0]
	for _, w := range f.waiters {
		if w.t != t {
			ws = append(ws, w)
		}
	}
	f.waiters = ws
}
