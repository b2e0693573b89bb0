// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"code.hybscloud.com/kont"
)

// Reify converts a Cont-world coroutine to Expr-world, the form the
// Scheduler steps and Nested and Spawn carry.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world coroutine to Cont-world so it can be
// composed with Bind and the fused constructors.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}

// Lift wraps a synchronous, deterministic function as a coroutine that
// completes without suspending. A non-nil error fails the coroutine.
// fn runs each time the coroutine is evaluated, including on replay.
func Lift(fn func() (any, error)) kont.Eff[Result] {
	return kont.Bind(kont.Pure(struct{}{}), func(struct{}) kont.Eff[Result] {
		v, err := fn()
		if err != nil {
			return Failed(err)
		}
		return Done(v)
	})
}
