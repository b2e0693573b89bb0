// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"errors"
	"fmt"

	"code.hybscloud.com/kont"
)

type schedState uint8

const (
	stateIdle schedState = iota
	stateRunning
	stateDone
	stateFailed
	stateClosed
)

// Scheduler runs the coroutines of one workflow run. It is driven from a
// single goroutine: Start once, then Resolve, Reject, Spawn and Cancel as
// responses and host commands arrive. Everything the coroutines issue is
// collected by Drain in issue order.
//
// Given the same body and the same sequence of calls with the same values,
// a Scheduler produces the same sequence of Requests.
type Scheduler struct {
	ctx    context.Context
	body   kont.Expr[Result]
	header Header
	tick   Tick
	logger Logger

	corr   *Correlator
	issuer Handler[*Request, *Request]

	tasks []*task
	root  *task
	seq   uint32
	ready []wakeup

	outbox []*Request
	state  schedState
	result Result
	err    error

	canceling bool
	reason    string
}

// wakeup is a blocked task made runnable, with its resumption value.
type wakeup struct {
	t *task
	v kont.Resumed
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithHeader sets the header inherited by the main coroutine.
func WithHeader(h Header) SchedulerOption {
	return func(s *Scheduler) { s.header = h.Clone() }
}

// WithTick sets the initial host tick.
func WithTick(t Tick) SchedulerOption {
	return func(s *Scheduler) { s.tick = t }
}

// WithInterceptors routes every issued Request through the IssueRequest
// chain of p.
func WithInterceptors(p Pipeline[Interceptor]) SchedulerOption {
	return func(s *Scheduler) {
		s.issuer = With(p, passRequest, Interceptor.IssueRequest)
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func passRequest(_ context.Context, req *Request) (*Request, error) { return req, nil }

// NewScheduler returns an idle Scheduler for body.
func NewScheduler(ctx context.Context, body kont.Eff[Result], opts ...SchedulerOption) *Scheduler {
	return NewSchedulerExpr(ctx, kont.Reify(body), opts...)
}

// NewSchedulerExpr is NewScheduler for an Expr-world body.
func NewSchedulerExpr(ctx context.Context, body kont.Expr[Result], opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		ctx:    ctx,
		body:   body,
		logger: NopLogger,
		corr:   NewCorrelator(),
		issuer: passRequest,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the main coroutine until every task is blocked or finished.
func (s *Scheduler) Start() error {
	if s.state != stateIdle {
		return errors.New("durable: scheduler already started")
	}
	s.state = stateRunning
	s.root = s.newTask(s.body, s.header)
	s.drive(s.root)
	s.pump()
	return s.err
}

// Spawn starts an extra top-level coroutine, such as a signal handler.
// header is merged over the run header. The Future resolves when the
// coroutine finishes.
func (s *Scheduler) Spawn(body kont.Eff[Result], header Header) (*Future, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	t := s.newTask(kont.Reify(body), merge(s.header, header))
	s.drive(t)
	s.pump()
	return t.future, s.err
}

// Resolve delivers a success response for the local call id.
func (s *Scheduler) Resolve(id ID, values Payloads) error {
	return s.settle(id, func() (*Future, error) { return s.corr.Resolve(id, values) })
}

// Reject delivers a failure response for the local call id.
func (s *Scheduler) Reject(id ID, cause error) error {
	return s.settle(id, func() (*Future, error) { return s.corr.Reject(id, cause) })
}

func (s *Scheduler) settle(id ID, resolve func() (*Future, error)) error {
	if s.state == stateIdle || s.state == stateClosed {
		return fmt.Errorf("resolve call %d: %w", id, ErrClosed)
	}
	if s.err != nil {
		return s.err
	}
	f, err := resolve()
	if err != nil {
		s.fail(err)
		return err
	}
	s.wakeAll(f)
	s.pump()
	return s.err
}

// Cancel cancels the run. Requests not yet drained are dropped. Every
// pending call is rejected with a *CanceledError in ascending id order and
// its waiter gets one final resumption; calls issued during that cleanup
// resolve as canceled at once and emit nothing. The remaining frames are
// then torn down without completing; the Future of every coroutine that
// did not finish is settled with the same *CanceledError. Canceling a
// finished or closed Scheduler does nothing.
func (s *Scheduler) Cancel(reason string) error {
	if s.state != stateRunning {
		return s.err
	}
	s.canceling, s.reason = true, reason
	cause := &CanceledError{Reason: reason}
	s.outbox = nil
	for _, id := range s.corr.Pending() {
		f, err := s.corr.Reject(id, cause)
		if err != nil {
			s.fail(err)
			break
		}
		s.wakeAll(f)
	}
	s.pump()
	if s.state == stateRunning {
		s.state = stateDone
		s.result = Fail(cause)
		if s.root != nil && !s.root.future.done {
			_ = s.root.future.settle(s.result)
		}
	}
	for _, t := range s.tasks {
		if !t.future.done {
			_ = t.future.settle(Fail(cause))
		}
	}
	s.teardown()
	s.logger.Debug(s.ctx, "run canceled", KeyReason, reason)
	return s.err
}

// SetTick updates the host tick observed by Now.
func (s *Scheduler) SetTick(t Tick) { s.tick = t }

// Tick returns the current host tick.
func (s *Scheduler) Tick() Tick { return s.tick }

// Drain returns the Requests issued since the last Drain, in issue order.
func (s *Scheduler) Drain() []*Request {
	out := s.outbox
	s.outbox = nil
	return out
}

// Done reports whether the main coroutine has finished or the run was
// canceled.
func (s *Scheduler) Done() bool {
	return s.state == stateDone || (s.state == stateClosed && s.root != nil && s.root.future.done)
}

// Result returns the main coroutine's result. Valid once Done.
func (s *Scheduler) Result() Result { return s.result }

// Future returns the main coroutine's Future, or nil before Start.
func (s *Scheduler) Future() *Future {
	if s.root == nil {
		return nil
	}
	return s.root.future
}

// Err returns the fatal error that stopped the Scheduler, if any.
func (s *Scheduler) Err() error { return s.err }

// Pending returns the outstanding local call ids in ascending order.
func (s *Scheduler) Pending() []ID { return s.corr.Pending() }

// Close tears down every remaining coroutine without resuming it.
func (s *Scheduler) Close() {
	if s.state == stateClosed {
		return
	}
	s.teardown()
	s.state = stateClosed
}

func (s *Scheduler) live() error {
	switch {
	case s.err != nil:
		return s.err
	case s.state != stateRunning:
		return ErrClosed
	}
	return nil
}

func (s *Scheduler) newTask(body kont.Expr[Result], header Header) *task {
	s.seq++
	t := &task{seq: s.seq, header: header.Clone(), future: &Future{owner: s}}
	s.tasks = append(s.tasks, t)
	t.push(body, func(r Result) error { return s.complete(t, r) })
	return t
}

// complete settles a task's Future once its last frame is popped.
func (s *Scheduler) complete(t *task, r Result) error {
	if err := t.future.settle(r); err != nil {
		return &FatalError{Err: fmt.Errorf("task %d: %w", t.seq, err)}
	}
	s.remove(t)
	if t == s.root {
		s.result = r
		s.state = stateDone
	}
	s.wakeAll(t.future)
	return nil
}

func (s *Scheduler) remove(t *task) {
	for i, u := range s.tasks {
		if u == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// drive steps t until it blocks, finishes, or the Scheduler stops.
func (s *Scheduler) drive(t *task) {
	for s.state == stateRunning && len(t.frames) > 0 && !t.blocked() {
		f := t.top()
		if f.finished() {
			t.pop()
			if err := f.onComplete(f.value); err != nil {
				s.fail(err)
				return
			}
			continue
		}
		op := f.susp.Op()
		d, ok := op.(dispatcher)
		if !ok {
			s.fail(unhandled(op))
			return
		}
		v, ready, err := d.DispatchScheduler(&dispatchContext{s: s, t: t, f: f})
		if err != nil {
			if isFatal(err) {
				s.fail(err)
				return
			}
			f.resume(Fail(err))
			continue
		}
		if s.state != stateRunning {
			return
		}
		if ready {
			f.resume(v)
		}
	}
}

// pump resumes woken tasks in wake order.
func (s *Scheduler) pump() {
	for len(s.ready) > 0 && s.state == stateRunning {
		w := s.ready[0]
		s.ready[0] = wakeup{}
		s.ready = s.ready[1:]
		if w.t.dead || len(w.t.frames) == 0 {
			continue
		}
		w.t.top().resume(w.v)
		s.drive(w.t)
	}
	if len(s.ready) == 0 {
		s.ready = nil
	}
}

// wakeAll queues every waiter of a settled Future.
func (s *Scheduler) wakeAll(f *Future) {
	for _, w := range f.takeWaiters() {
		w.t.unblock()
		var v kont.Resumed = f.result
		if w.index >= 0 {
			v = w.index
		}
		s.ready = append(s.ready, wakeup{t: w.t, v: v})
	}
}

// issue registers a call and queues its Request.
func (s *Scheduler) issue(t *task, tmpl *Request) (*Future, error) {
	switch {
	case tmpl == nil || tmpl.Name == "":
		return s.settled(Fail(ErrInvalidRequest)), nil
	case s.canceling:
		return s.settled(Fail(&CanceledError{Reason: s.reason})), nil
	}
	id, f, err := s.corr.Register()
	if err != nil {
		return nil, err
	}
	f.owner = s
	req := &Request{
		ID:       id,
		Name:     tmpl.Name,
		Options:  tmpl.Options,
		Payloads: tmpl.Payloads,
		Header:   merge(t.header, tmpl.Header),
	}
	out, err := s.issuer(s.ctx, req)
	if err != nil {
		if _, rerr := s.corr.Reject(id, err); rerr != nil {
			return nil, rerr
		}
		return f, nil
	}
	if out == nil {
		out = req
	}
	out.ID = id
	s.outbox = append(s.outbox, out)
	return f, nil
}

// settled returns a resolved Future that was never sent.
func (s *Scheduler) settled(r Result) *Future {
	f := &Future{owner: s}
	_ = f.settle(r)
	return f
}

func (s *Scheduler) owns(f *Future) bool {
	if f == nil || f.owner != s {
		return false
	}
	if f.id != NoID && !f.done {
		_, ok := s.corr.Lookup(f)
		return ok
	}
	return true
}

func (s *Scheduler) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	if s.state == stateRunning || s.state == stateDone {
		s.state = stateFailed
	}
	s.logger.Error(s.ctx, "scheduler stopped", KeyErr, err)
}

func (s *Scheduler) teardown() {
	for i := len(s.tasks) - 1; i >= 0; i-- {
		s.tasks[i].teardown()
	}
	s.tasks = nil
	s.ready = nil
	for _, id := range s.corr.Pending() {
		s.corr.detach(id)
	}
}

func isFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// merge returns base overlaid with over.
func merge(base, over Header) Header {
	if len(over) == 0 {
		return base.Clone()
	}
	h := base.Clone()
	if h == nil {
		h = make(Header, len(over))
	}
	for k, v := range over {
		h[k] = v
	}
	return h
}
