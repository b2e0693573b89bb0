// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"time"

	"code.hybscloud.com/kont"
)

// Pre-boxed operations and frames for the allocation-free Expr-world path.
var (
	exprReturnFrame kont.Frame  = kont.ReturnFrame{}
	exprNow         kont.Erased = Now{}
	exprGetHeader   kont.Erased = GetHeader{}
)

// identityResume is the resume function of every fused EffectFrame.
func identityResume(v kont.Erased) kont.Erased { return v }

func bindUnwind[T, B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(T) kont.Expr[B])
	result := f(current.(T))
	return kont.Erased(result.Value), result.Frame
}

// exprBind suspends on op and continues with f applied to the resumption.
func exprBind[T, B any](op kont.Erased, f func(T) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = bindUnwind[T, B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = op
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

// exprThen suspends on op and continues with next, ignoring the resumption.
func exprThen[B any](op kont.Erased, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = op
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

// exprPerform suspends on op and completes with the resumption.
func exprPerform[T any](op kont.Erased) kont.Expr[T] {
	ef := kont.AcquireEffectFrame()
	ef.Operation = op
	ef.Resume = identityResume
	ef.Next = exprReturnFrame
	return kont.ExprSuspend[T](ef)
}

// ExprDone completes a coroutine successfully with v.
func ExprDone(v any) kont.Expr[Result] { return kont.ExprReturn(Ok(v)) }

// ExprFailed completes a coroutine with err.
func ExprFailed(err error) kont.Expr[Result] { return kont.ExprReturn(Fail(err)) }

// ExprCallBind issues req, waits for its response and passes it to f.
func ExprCallBind[B any](req *Request, f func(Result) kont.Expr[B]) kont.Expr[B] {
	return exprBind[Result](Call{Request: req}, f)
}

// ExprCallDone issues req and completes with its response.
func ExprCallDone(req *Request) kont.Expr[Result] {
	return exprPerform[Result](Call{Request: req})
}

// ExprStartBind issues req without waiting and passes its Future to f.
func ExprStartBind[B any](req *Request, f func(*Future) kont.Expr[B]) kont.Expr[B] {
	return exprBind[*Future](Start{Request: req}, f)
}

// ExprAwaitBind waits for fut and passes its Result to f.
func ExprAwaitBind[B any](fut *Future, f func(Result) kont.Expr[B]) kont.Expr[B] {
	return exprBind[Result](Await{Future: fut}, f)
}

// ExprSelectBind waits for the first of futs and passes its index to f.
func ExprSelectBind[B any](futs []*Future, f func(int) kont.Expr[B]) kont.Expr[B] {
	return exprBind[int](Select{Futures: futs}, f)
}

// ExprNestedBind runs body as a nested coroutine and passes its Result to f.
func ExprNestedBind[B any](body kont.Expr[Result], f func(Result) kont.Expr[B]) kont.Expr[B] {
	return exprBind[Result](Nested{Body: body}, f)
}

// ExprSpawnBind starts body as a sibling coroutine and passes its Future to f.
func ExprSpawnBind[B any](body kont.Expr[Result], f func(*Future) kont.Expr[B]) kont.Expr[B] {
	return exprBind[*Future](Spawn{Body: body}, f)
}

// ExprNowBind passes the host tick time to f.
func ExprNowBind[B any](f func(time.Time) kont.Expr[B]) kont.Expr[B] {
	return exprBind[time.Time](exprNow, f)
}

// ExprHeaderBind passes a copy of the coroutine header to f.
func ExprHeaderBind[B any](f func(Header) kont.Expr[B]) kont.Expr[B] {
	return exprBind[Header](exprGetHeader, f)
}

// ExprSetHeaderThen sets one header value and continues with next.
func ExprSetHeaderThen[B any](key string, value Payload, next kont.Expr[B]) kont.Expr[B] {
	return exprThen(SetHeader{Key: key, Value: value}, next)
}
