// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"code.hybscloud.com/kont"
)

// Loop runs a recursive coroutine (Cont-world) such as a polling or retry
// loop. step returns Left(nextState) to continue or Right(result) to finish.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(e kont.Either[S, A]) kont.Eff[A] {
		if next, ok := e.GetLeft(); ok {
			return Loop(next, step)
		}
		done, _ := e.GetRight()
		return kont.Pure(done)
	})
}

// ExprLoop runs a recursive coroutine (Expr-world).
// Iterations that complete without suspending are unrolled in place; the
// first suspending iteration chains an unwind frame that re-enters the loop.
func ExprLoop[S, A any](initial S, step func(S) kont.Expr[kont.Either[S, A]]) kont.Expr[A] {
	state := initial
	for {
		m := step(state)
		if _, ok := m.Frame.(kont.ReturnFrame); !ok {
			uf := kont.AcquireUnwindFrame()
			uf.Data1 = step
			uf.Unwind = loopUnwind[S, A]
			var zero A
			return kont.Expr[A]{Value: zero, Frame: kont.ChainFrames(m.Frame, uf)}
		}
		next, ok := m.Value.GetLeft()
		if !ok {
			done, _ := m.Value.GetRight()
			return kont.ExprReturn(done)
		}
		state = next
	}
}

func loopUnwind[S, A any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	step := data.(func(S) kont.Expr[kont.Either[S, A]])
	e := current.(kont.Either[S, A])
	if next, ok := e.GetLeft(); ok {
		result := ExprLoop(next, step)
		return kont.Erased(result.Value), result.Frame
	}
	done, _ := e.GetRight()
	return kont.Erased(done), exprReturnFrame
}

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	// Zero or one means a single attempt.
	MaxAttempts int

	// Retryable decides whether a failed attempt is retried. Nil retries
	// every failure except cancellation.
	Retryable func(error) bool
}

func (p RetryPolicy) retry(attempt int, err error) bool {
	if attempt >= max(p.MaxAttempts, 1) || IsCanceled(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Retry issues req until it succeeds or the policy gives up, and completes
// with the last Result. Every attempt is a distinct call with its own id.
func Retry(req *Request, policy RetryPolicy) kont.Eff[Result] {
	return Loop(1, func(attempt int) kont.Eff[kont.Either[int, Result]] {
		return CallBind(req, func(r Result) kont.Eff[kont.Either[int, Result]] {
			if r.Err != nil && policy.retry(attempt, r.Err) {
				return kont.Pure(kont.Left[int, Result](attempt + 1))
			}
			return kont.Pure(kont.Right[int, Result](r))
		})
	})
}
