// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"slices"
)

// Handler is one link of an interceptor chain.
type Handler[A, R any] func(ctx context.Context, in A) (R, error)

// Pipeline is an immutable, ordered set of interceptors of type I.
// The first interceptor is the outermost.
type Pipeline[I any] struct {
	interceptors []I
}

// Prepare returns a Pipeline holding its own copy of interceptors.
// Later changes to the argument slice do not affect it.
func Prepare[I any](interceptors ...I) Pipeline[I] {
	return Pipeline[I]{interceptors: slices.Clone(interceptors)}
}

// Len returns the number of interceptors.
func (p Pipeline[I]) Len() int { return len(p.interceptors) }

// Append returns a new Pipeline with more interceptors innermost.
func (p Pipeline[I]) Append(more ...I) Pipeline[I] {
	return Pipeline[I]{interceptors: slices.Concat(p.interceptors, more)}
}

// With builds a Handler that threads a call through every interceptor of p,
// in order, before reaching terminal. method selects the operation and is
// usually a method expression such as Interceptor.ExecuteActivity.
// An empty Pipeline yields terminal itself.
//
// The returned Handler may be invoked any number of times; each invocation
// starts again at the first interceptor.
func With[I, A, R any](p Pipeline[I], terminal Handler[A, R], method func(I, context.Context, A, Handler[A, R]) (R, error)) Handler[A, R] {
	return link(p.interceptors, 0, terminal, method)
}

// link returns the handler for position pos; it closes over pos+1.
func link[I, A, R any](is []I, pos int, terminal Handler[A, R], method func(I, context.Context, A, Handler[A, R]) (R, error)) Handler[A, R] {
	if pos == len(is) {
		return terminal
	}
	i, next := is[pos], link(is, pos+1, terminal, method)
	return func(ctx context.Context, in A) (R, error) {
		return method(i, ctx, in, next)
	}
}
