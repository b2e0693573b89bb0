// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"time"

	"code.hybscloud.com/kont"
)

// Done completes a coroutine successfully with v.
func Done(v any) kont.Eff[Result] { return kont.Pure(Ok(v)) }

// Failed completes a coroutine with err.
func Failed(err error) kont.Eff[Result] { return kont.Pure(Fail(err)) }

// CallBind issues req, waits for its response and passes it to f.
// Fuses Perform(Call{Request: req}) + Bind.
func CallBind[B any](req *Request, f func(Result) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Call{Request: req}), f)
}

// CallDone issues req and completes with its response.
func CallDone(req *Request) kont.Eff[Result] {
	return kont.Perform(Call{Request: req})
}

// StartBind issues req without waiting and passes its Future to f.
// Fuses Perform(Start{Request: req}) + Bind.
func StartBind[B any](req *Request, f func(*Future) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Start{Request: req}), f)
}

// AwaitBind waits for fut and passes its Result to f.
// Fuses Perform(Await{Future: fut}) + Bind.
func AwaitBind[B any](fut *Future, f func(Result) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Await{Future: fut}), f)
}

// SelectBind waits for the first of futs and passes its index to f.
// Fuses Perform(Select{Futures: futs}) + Bind.
func SelectBind[B any](futs []*Future, f func(int) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Select{Futures: futs}), f)
}

// NestedBind runs body as a nested coroutine and passes its Result to f.
// Fuses Perform(Nested{Body: Reify(body)}) + Bind.
func NestedBind[B any](body kont.Eff[Result], f func(Result) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Nested{Body: kont.Reify(body)}), f)
}

// SpawnBind starts body as a sibling coroutine and passes its Future to f.
// Fuses Perform(Spawn{Body: Reify(body)}) + Bind.
func SpawnBind[B any](body kont.Eff[Result], f func(*Future) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Spawn{Body: kont.Reify(body)}), f)
}

// NowBind passes the host tick time to f.
func NowBind[B any](f func(time.Time) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Now{}), f)
}

// HeaderBind passes a copy of the coroutine header to f.
func HeaderBind[B any](f func(Header) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(GetHeader{}), f)
}

// SetHeaderThen sets one header value and continues with next.
// Fuses Perform(SetHeader{...}) + Then.
func SetHeaderThen[B any](key string, value Payload, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(SetHeader{Key: key, Value: value}), next)
}

// AwaitAll waits for every Future in order and completes with their
// Results. It does not stop at the first failure.
func AwaitAll(futs []*Future) kont.Eff[Result] {
	type state struct {
		i   int
		out []Result
	}
	return Loop(state{out: make([]Result, 0, len(futs))}, func(s state) kont.Eff[kont.Either[state, Result]] {
		if s.i == len(futs) {
			return kont.Pure(kont.Right[state, Result](Ok(s.out)))
		}
		return AwaitBind(futs[s.i], func(r Result) kont.Eff[kont.Either[state, Result]] {
			return kont.Pure(kont.Left[state, Result](state{i: s.i + 1, out: append(s.out, r)}))
		})
	})
}
