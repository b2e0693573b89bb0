// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"fmt"
	"runtime/debug"

	"code.hybscloud.com/kont"
)

// Step evaluates a coroutine until its first effect suspension.
// Returns (result, nil) on completion, or (zero, suspension) if pending.
// A panic in coroutine code completes it with a *PanicError result.
func Step(body kont.Expr[Result]) (r Result, susp *kont.Suspension[Result]) {
	defer recoverStep(&r, &susp)
	return kont.StepExpr(body)
}

// Advance resumes a suspension with v and evaluates to the next effect.
// The suspension is consumed even when coroutine code panics.
func Advance(susp *kont.Suspension[Result], v kont.Resumed) (r Result, next *kont.Suspension[Result]) {
	defer recoverStep(&r, &next)
	return susp.Resume(v)
}

func recoverStep(r *Result, susp **kont.Suspension[Result]) {
	if p := recover(); p != nil {
		*r = Fail(&PanicError{Value: p, Stack: string(debug.Stack())})
		*susp = nil
	}
}

// dispatcher is implemented by every effect operation the Scheduler handles.
// ready is false when the task blocked or pushed a frame. A non-fatal err
// resumes the coroutine with Fail(err), so only operations resuming with a
// Result may return one.
type dispatcher interface {
	DispatchScheduler(ctx *dispatchContext) (v kont.Resumed, ready bool, err error)
}

// dispatchContext is the view of the Scheduler an operation dispatches on.
type dispatchContext struct {
	s *Scheduler
	t *task
	f *frame
}

// await resumes with f's result or blocks the task on it.
func (c *dispatchContext) await(f *Future) (kont.Resumed, bool, error) {
	if !c.s.owns(f) {
		return nil, false, ErrForeignFuture
	}
	if f.done {
		return f.result, true, nil
	}
	c.block(f, -1)
	return nil, false, nil
}

func (c *dispatchContext) block(f *Future, index int) {
	f.wait(c.t, index)
	c.t.waiting = append(c.t.waiting, f)
}

func unhandled(op kont.Operation) error {
	return &FatalError{Err: fmt.Errorf("%w: %T", ErrUnhandledEffect, op)}
}
