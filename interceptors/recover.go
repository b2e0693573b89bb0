// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package interceptors

import (
	"context"
	"runtime/debug"

	"code.hybscloud.com/durable"
)

// Recover turns panics in activities and queries into *durable.PanicError.
// Coroutine panics are already contained by the scheduler.
type Recover struct {
	durable.InterceptorBase
	logger durable.Logger
}

// NewRecover logs recovered panics through l, which may be nil.
func NewRecover(l durable.Logger) *Recover {
	if l == nil {
		l = durable.NopLogger
	}
	return &Recover{logger: l}
}

func (r *Recover) ExecuteActivity(ctx context.Context, in *durable.ActivityInput, next durable.Handler[*durable.ActivityInput, durable.Payloads]) (res durable.Payloads, err error) {
	defer r.catch(ctx, in.Name, &err)
	return next(ctx, in)
}

func (r *Recover) HandleQuery(ctx context.Context, in *durable.QueryInput, next durable.Handler[*durable.QueryInput, durable.Payloads]) (res durable.Payloads, err error) {
	defer r.catch(ctx, in.Name, &err)
	return next(ctx, in)
}

func (r *Recover) catch(ctx context.Context, name string, err *error) {
	v := recover()
	if v == nil {
		return
	}
	pe := &durable.PanicError{Value: v, Stack: string(debug.Stack())}
	r.logger.Error(ctx, "handler panicked", durable.KeyCommand, name, durable.KeyErr, pe, "stack", pe.Stack)
	*err = pe
}
