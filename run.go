// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"fmt"
)

// reply is a host request answered when a coroutine Future resolves.
type reply struct {
	hostID ID
	future *Future
	what   string
}

// run is one workflow run owned by the worker loop.
type run struct {
	id       string
	name     string
	workflow *Workflow
	sched    *Scheduler
	replies  []reply
	failed   bool
}

// newRun builds the scheduler for a StartWorkflow request. The main
// coroutine is not started yet.
func (w *Worker) newRun(ctx context.Context, id, name string, factory WorkflowFactory, req *Request) (*run, error) {
	wf := factory()
	if wf == nil || wf.Main == nil {
		return nil, fmt.Errorf("workflow %q has no main coroutine", name)
	}
	r := &run{id: id, name: name, workflow: wf}
	r.sched = NewScheduler(ctx, wf.Main(req.Payloads),
		WithHeader(req.Header),
		WithTick(req.Tick),
		WithInterceptors(w.interceptors),
		WithSchedulerLogger(w.logger),
	)
	return r, nil
}

// await records a host request answered by f.
func (r *run) await(hostID ID, f *Future, what string) {
	r.replies = append(r.replies, reply{hostID: hostID, future: f, what: what})
}

// settled removes and returns the answers to every resolved reply, in the
// order the requests arrived.
func (r *run) settled(conv *DataConverter) []Command {
	var out []Command
	keep := r.replies[:0]
	for _, rp := range r.replies {
		res, ok := rp.future.Result()
		if !ok {
			keep = append(keep, rp)
			continue
		}
		out = append(out, answer(rp.hostID, res, conv))
	}
	clear(r.replies[len(keep):])
	r.replies = keep
	return out
}

// abandon answers every outstanding reply with err.
func (r *run) abandon(err error) []Command {
	out := make([]Command, 0, len(r.replies))
	for _, rp := range r.replies {
		out = append(out, failureOf(rp.hostID, err))
	}
	r.replies = nil
	return out
}

// answer turns a coroutine Result into the host response for hostID.
// Payloads pass through; any other value goes through conv.
func answer(hostID ID, res Result, conv *DataConverter) Command {
	if res.Err != nil {
		return failureOf(hostID, res.Err)
	}
	switch v := res.Value.(type) {
	case nil:
		return &Success{ID: hostID}
	case Payloads:
		return &Success{ID: hostID, Result: v}
	default:
		ps, err := conv.ToPayloads(v)
		if err != nil {
			return failureOf(hostID, fmt.Errorf("encode result: %w", err))
		}
		return &Success{ID: hostID, Result: ps}
	}
}
