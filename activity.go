// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// activityDone is a finished activity waiting to be answered.
type activityDone struct {
	hostID ID
	name   string
	result Payloads
	err    error
}

// activityPool runs activities off the worker loop. At most limit run at a
// time and starts are paced by the limiter. Finished activities are
// collected without blocking the activity goroutine.
type activityPool struct {
	group   errgroup.Group
	limiter *rate.Limiter
	timeout time.Duration
	handler Handler[*ActivityInput, Payloads]
	metrics *Metrics

	mu     sync.Mutex
	done   []activityDone
	notify chan struct{}
}

func newActivityPool(limit int, limiter *rate.Limiter, timeout time.Duration, handler Handler[*ActivityInput, Payloads], m *Metrics) *activityPool {
	p := &activityPool{
		limiter: limiter,
		timeout: timeout,
		handler: handler,
		metrics: m,
		notify:  make(chan struct{}, 1),
	}
	if limit > 0 {
		p.group.SetLimit(limit)
	}
	return p
}

// submit starts the activity. It blocks while the pool is full.
func (p *activityPool) submit(ctx context.Context, hostID ID, in *ActivityInput) {
	p.group.Go(func() error {
		start := time.Now()
		res, err := p.execute(ctx, in)
		p.metrics.activityDone(ctx, in.Name, time.Since(start), err)
		p.finish(activityDone{hostID: hostID, name: in.Name, result: res, err: err})
		return nil
	})
}

func (p *activityPool) execute(ctx context.Context, in *ActivityInput) (res Payloads, err error) {
	defer func() {
		if v := recover(); v != nil {
			res, err = nil, &PanicError{Value: v, Stack: string(debug.Stack())}
		}
	}()
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.handler(ctx, in)
}

func (p *activityPool) finish(d activityDone) {
	p.mu.Lock()
	p.done = append(p.done, d)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// collect returns every activity finished since the last call, in
// completion order.
func (p *activityPool) collect() []activityDone {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := p.done
	p.done = nil
	return done
}

// wait blocks until every submitted activity has returned.
func (p *activityPool) wait() { _ = p.group.Wait() }

// newLimiter returns a limiter admitting perSecond starts with burst.
// A non-positive rate is unlimited.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
}
