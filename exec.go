// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"errors"

	"code.hybscloud.com/kont"
)

// ErrStalled reports coroutines that are all blocked while no request is
// outstanding, so no response can ever wake them.
var ErrStalled = errors.New("durable: coroutines blocked with no outstanding request")

// Responder answers one issued Request.
type Responder func(req *Request) Result

// Exec runs a Cont-world coroutine to completion on a fresh Scheduler,
// answering every issued Request with respond in issue order. It returns
// the final Result and every Request issued.
//
// Exec replays a recorded history: the same body and the same answers
// always yield the same Requests.
func Exec(ctx context.Context, body kont.Eff[Result], respond Responder, opts ...SchedulerOption) (Result, []*Request, error) {
	return ExecExpr(ctx, kont.Reify(body), respond, opts...)
}

// ExecExpr runs an Expr-world coroutine to completion. See Exec.
func ExecExpr(ctx context.Context, body kont.Expr[Result], respond Responder, opts ...SchedulerOption) (Result, []*Request, error) {
	s := NewSchedulerExpr(ctx, body, opts...)
	defer s.Close()
	if err := s.Start(); err != nil {
		return Result{}, s.Drain(), err
	}
	var issued []*Request
	for !s.Done() {
		reqs := s.Drain()
		if len(reqs) == 0 {
			return Result{}, issued, ErrStalled
		}
		issued = append(issued, reqs...)
		for _, req := range reqs {
			if s.Done() {
				break
			}
			if !s.corr.IsPending(req.ID) {
				continue
			}
			res := respond(req)
			var err error
			if res.Err != nil {
				err = s.Reject(req.ID, res.Err)
			} else {
				err = s.Resolve(req.ID, res.Payloads())
			}
			if err != nil {
				return Result{}, issued, err
			}
		}
	}
	return s.Result(), issued, s.Err()
}
