// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Host command names.
const (
	CommandStartWorkflow   = "StartWorkflow"
	CommandInvokeSignal    = "InvokeSignal"
	CommandInvokeQuery     = "InvokeQuery"
	CommandCancelWorkflow  = "CancelWorkflow"
	CommandDestroyWorkflow = "DestroyWorkflow"
	CommandInvokeActivity  = "InvokeActivity"
	CommandGetWorkerInfo   = "GetWorkerInfo"
)

// Request option keys understood by the worker.
const (
	OptionRunID  = "run_id"
	OptionName   = "name"
	OptionReason = "reason"
)

// WorkerInfo answers GetWorkerInfo.
type WorkerInfo struct {
	ID         string   `json:"id" msgpack:"id"`
	Codec      string   `json:"codec" msgpack:"codec"`
	Workflows  []string `json:"workflows" msgpack:"workflows"`
	Activities []string `json:"activities" msgpack:"activities"`
}

// Stats are worker counters safe to read from any goroutine.
type Stats struct {
	Batches    uint32
	Runs       uint32
	Activities uint32
}

// Worker connects a Registry to a host over a Transport. A single loop
// goroutine owns every run and its Scheduler; only activities run
// elsewhere.
type Worker struct {
	id           string
	transport    Transport
	registry     *Registry
	codec        Codec
	converter    *DataConverter
	interceptors Pipeline[Interceptor]
	logger       Logger
	metrics      *Metrics

	batchLimit      int
	concurrency     int
	rate            float64
	burst           int
	activityTimeout time.Duration

	runs   map[string]*run
	order  []*run
	routes *routeTable
	pool   *activityPool
	out    []Command

	batches    atomix.Uint32
	started    atomix.Uint32
	activities atomix.Uint32
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerID sets the identity reported by GetWorkerInfo.
func WithWorkerID(id string) WorkerOption {
	return func(w *Worker) {
		if id != "" {
			w.id = id
		}
	}
}

// WithCodec sets the wire codec.
func WithCodec(c Codec) WorkerOption {
	return func(w *Worker) { w.codec = c }
}

// WithConverter sets the converter for coroutine results and worker info.
func WithConverter(c *DataConverter) WorkerOption {
	return func(w *Worker) { w.converter = c }
}

// WithBatchLimit caps the number of commands per outgoing Packet.
// A non-positive n keeps the default.
func WithBatchLimit(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchLimit = n
		}
	}
}

// WithActivityConcurrency caps the number of activities running at once.
func WithActivityConcurrency(n int) WorkerOption {
	return func(w *Worker) { w.concurrency = n }
}

// WithActivityRate limits activity starts per second. Zero is unlimited.
func WithActivityRate(perSecond float64, burst int) WorkerOption {
	return func(w *Worker) { w.rate, w.burst = perSecond, burst }
}

// WithActivityTimeout bounds every activity execution.
func WithActivityTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.activityTimeout = d }
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(l Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithMetrics records worker instruments on m.
func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithWorkerInterceptors installs interceptors, outermost first.
func WithWorkerInterceptors(is ...Interceptor) WorkerOption {
	return func(w *Worker) { w.interceptors = w.interceptors.Append(is...) }
}

// NewWorker creates a Worker serving reg over t.
func NewWorker(t Transport, reg *Registry, opts ...WorkerOption) *Worker {
	w := &Worker{
		id:          uuid.NewString(),
		transport:   t,
		registry:    reg,
		codec:       JSONCodec{},
		converter:   DefaultConverter,
		logger:      NopLogger,
		batchLimit:  DefaultBatchLimit,
		concurrency: DefaultActivityConcurrency,
		burst:       1,
		runs:        make(map[string]*run),
		routes:      newRouteTable(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pool = newActivityPool(w.concurrency, newLimiter(w.rate, w.burst), w.activityTimeout,
		With(w.interceptors, w.runActivity, Interceptor.ExecuteActivity), w.metrics)
	return w
}

// ID returns the worker identity.
func (w *Worker) ID() string { return w.id }

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Batches:    w.batches.Load(),
		Runs:       w.started.Load(),
		Activities: w.activities.Load(),
	}
}

// Run serves the transport until it closes, ctx is done, or a protocol
// error occurs. Every inbound Packet is answered with at least one
// outbound Packet; finished activities are sent as they complete.
// Run closes the transport on return.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	packets := make(chan Packet)
	errc := make(chan error, 1)
	var g errgroup.Group
	g.Go(func() error {
		for {
			p, err := w.transport.Receive(ctx)
			if err != nil {
				errc <- err
				return nil
			}
			select {
			case packets <- p:
			case <-ctx.Done():
				return nil
			}
		}
	})
	defer func() {
		cancel()
		_ = w.transport.Close()
		_ = g.Wait()
		w.pool.wait()
		w.closeRuns()
	}()

	w.logger.Info(ctx, "worker started", KeyWorker, w.id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if errors.Is(err, ErrClosed) {
				w.logger.Info(ctx, "transport closed", KeyWorker, w.id)
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		case p := <-packets:
			if err := w.handlePacket(ctx, p); err != nil {
				return err
			}
		case <-w.pool.notify:
			if err := w.send(ctx, w.activityReplies(), false); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) handlePacket(ctx context.Context, p Packet) error {
	cmds, err := w.codec.Decode(p.Body, p.Header)
	if err != nil {
		w.protocolError(ctx, err)
		return fmt.Errorf("decode batch: %w", err)
	}
	tick, err := ParseTick(p.Header)
	if err != nil {
		w.protocolError(ctx, err)
		return err
	}
	out, err := w.HandleBatch(ctx, tick, cmds)
	if err != nil {
		return err
	}
	return w.send(ctx, out, true)
}

// send encodes out into Packets of at most batchLimit commands. With
// always set, an empty batch still produces one empty Packet.
func (w *Worker) send(ctx context.Context, out []Command, always bool) error {
	if len(out) == 0 && !always {
		return nil
	}
	for first := true; first || len(out) > 0; first = false {
		n := min(len(out), w.batchLimit)
		body, err := w.codec.Encode(out[:n])
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}
		if err := w.transport.Send(ctx, Packet{Body: body}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		out = out[n:]
	}
	return nil
}

// HandleBatch processes one inbound batch and returns the outbound
// commands it produced: new Requests of every run in issue order, then
// answers to host requests. A non-zero tick is applied to every run
// before the batch. A protocol error aborts the batch.
func (w *Worker) HandleBatch(ctx context.Context, tick Tick, cmds []Command) ([]Command, error) {
	w.batches.Add(1)
	if !tick.Time.IsZero() {
		for _, r := range w.order {
			r.sched.SetTick(tick)
		}
	}
	for _, c := range cmds {
		var err error
		switch c := c.(type) {
		case *Request:
			w.handleRequest(ctx, c)
		case *Success:
			err = w.deliver(ctx, c.ID, Ok(c.Result))
		case *Failure:
			if c.Fatal() {
				err = &ProtocolError{Kind: HostFailure, Detail: c.Message}
				break
			}
			err = w.deliver(ctx, c.ID, Fail(c.Err()))
		}
		if err != nil {
			w.protocolError(ctx, err)
			return nil, err
		}
	}
	for _, r := range w.order {
		w.collect(ctx, r)
	}
	out := w.out
	w.out = nil
	w.metrics.batch(ctx, len(cmds), len(out))
	w.logger.Debug(ctx, "batch handled", KeyCount, len(cmds), "out", len(out))
	return out, nil
}

func (w *Worker) handleRequest(ctx context.Context, req *Request) {
	switch req.Name {
	case CommandStartWorkflow:
		w.startWorkflow(ctx, req)
	case CommandInvokeSignal:
		w.invokeSignal(ctx, req)
	case CommandInvokeQuery:
		w.invokeQuery(ctx, req)
	case CommandCancelWorkflow:
		w.cancelWorkflow(ctx, req)
	case CommandDestroyWorkflow:
		w.destroyWorkflow(ctx, req)
	case CommandInvokeActivity:
		w.invokeActivity(ctx, req)
	case CommandGetWorkerInfo:
		w.workerInfo(req)
	default:
		w.fail(req.ID, CodeNotFound, "unknown command %q", req.Name)
	}
}

func (w *Worker) startWorkflow(ctx context.Context, req *Request) {
	runID, name := req.Options.GetString(OptionRunID), req.Options.GetString(OptionName)
	if runID == "" || name == "" {
		w.fail(req.ID, CodeBadRequest, "%s: %s and %s are required", req.Name, OptionRunID, OptionName)
		return
	}
	if _, ok := w.runs[runID]; ok {
		w.fail(req.ID, CodeConflict, "run %q already exists", runID)
		return
	}
	factory, ok := w.registry.FindWorkflow(name)
	if !ok {
		w.fail(req.ID, CodeNotFound, "%v: %s", ErrNoSuchWorkflow, name)
		return
	}
	r, err := w.newRun(ctx, runID, name, factory, req)
	if err != nil {
		w.reply(failureOf(req.ID, err))
		return
	}
	start := With(w.interceptors, func(context.Context, *WorkflowInput) (*Future, error) {
		if err := r.sched.Start(); err != nil {
			return nil, err
		}
		return r.sched.Future(), nil
	}, Interceptor.StartWorkflow)
	f, err := start(ctx, &WorkflowInput{RunID: runID, Name: name, Args: req.Payloads, Header: req.Header, Tick: req.Tick})
	if err != nil {
		r.sched.Close()
		w.reply(failureOf(req.ID, err))
		w.metrics.run(ctx, name, "failed")
		return
	}
	if f == nil {
		f = r.sched.Future()
	}
	w.runs[runID] = r
	w.order = append(w.order, r)
	r.await(req.ID, f, req.Name)
	w.started.Add(1)
	w.metrics.run(ctx, name, "started")
	w.logger.Info(ctx, "run started", KeyRunID, runID, KeyWorkflow, name)
}

func (w *Worker) invokeSignal(ctx context.Context, req *Request) {
	r, name, ok := w.target(req)
	if !ok {
		return
	}
	h := r.workflow.Signals[name]
	if h == nil {
		w.fail(req.ID, CodeNotFound, "%v: signal %q on %s", ErrNoSuchHandler, name, r.name)
		return
	}
	signal := With(w.interceptors, func(_ context.Context, in *SignalInput) (*Future, error) {
		return r.sched.Spawn(h(in.Args), in.Header)
	}, Interceptor.HandleSignal)
	f, err := signal(ctx, &SignalInput{RunID: r.id, Name: name, Args: req.Payloads, Header: req.Header})
	if err != nil {
		w.reply(failureOf(req.ID, err))
		return
	}
	r.await(req.ID, f, req.Name)
}

func (w *Worker) invokeQuery(ctx context.Context, req *Request) {
	r, name, ok := w.target(req)
	if !ok {
		return
	}
	h := r.workflow.Queries[name]
	if h == nil {
		w.fail(req.ID, CodeNotFound, "%v: query %q on %s", ErrNoSuchHandler, name, r.name)
		return
	}
	query := With(w.interceptors, func(_ context.Context, in *QueryInput) (Payloads, error) {
		return h(in.Args)
	}, Interceptor.HandleQuery)
	res, err := query(ctx, &QueryInput{RunID: r.id, Name: name, Args: req.Payloads})
	if err != nil {
		w.reply(failureOf(req.ID, err))
		return
	}
	w.reply(&Success{ID: req.ID, Result: res})
}

func (w *Worker) cancelWorkflow(ctx context.Context, req *Request) {
	r, ok := w.lookup(req)
	if !ok {
		return
	}
	reason := req.Options.GetString(OptionReason)
	if reason == "" {
		reason = "canceled by host"
	}
	err := r.sched.Cancel(reason)
	w.routes.orphan(r)
	if err != nil {
		w.reply(failureOf(req.ID, err))
		return
	}
	w.reply(&Success{ID: req.ID})
	w.logger.Info(ctx, "run canceled", KeyRunID, r.id, KeyReason, reason)
}

func (w *Worker) destroyWorkflow(ctx context.Context, req *Request) {
	r, ok := w.lookup(req)
	if !ok {
		return
	}
	w.out = append(w.out, r.abandon(&CanceledError{Reason: "run destroyed"})...)
	r.sched.Close()
	w.routes.orphan(r)
	delete(w.runs, r.id)
	w.order = slices.DeleteFunc(w.order, func(o *run) bool { return o == r })
	w.reply(&Success{ID: req.ID})
	w.metrics.run(ctx, r.name, "destroyed")
	w.logger.Info(ctx, "run destroyed", KeyRunID, r.id)
}

func (w *Worker) invokeActivity(ctx context.Context, req *Request) {
	name := req.Options.GetString(OptionName)
	if _, ok := w.registry.FindActivity(name); !ok {
		w.fail(req.ID, CodeNotFound, "%v: %s", ErrNoSuchActivity, name)
		return
	}
	w.activities.Add(1)
	w.pool.submit(ctx, req.ID, &ActivityInput{Name: name, Args: req.Payloads, Header: req.Header, Options: req.Options})
}

// runActivity is the innermost ExecuteActivity handler.
func (w *Worker) runActivity(ctx context.Context, in *ActivityInput) (Payloads, error) {
	fn, ok := w.registry.FindActivity(in.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchActivity, in.Name)
	}
	return fn(ctx, in.Args)
}

func (w *Worker) activityReplies() []Command {
	done := w.pool.collect()
	out := make([]Command, 0, len(done))
	for _, d := range done {
		if d.err != nil {
			out = append(out, failureOf(d.hostID, d.err))
			continue
		}
		out = append(out, &Success{ID: d.hostID, Result: d.result})
	}
	return out
}

func (w *Worker) workerInfo(req *Request) {
	info := WorkerInfo{
		ID:         w.id,
		Codec:      w.codec.Name(),
		Workflows:  w.registry.Workflows(),
		Activities: w.registry.Activities(),
	}
	ps, err := w.converter.ToPayloads(info)
	if err != nil {
		w.reply(failureOf(req.ID, err))
		return
	}
	w.reply(&Success{ID: req.ID, Result: ps})
}

// deliver routes a response to the run that issued the call. A protocol
// error from the run's correlator aborts the batch; any other error fails
// only the run and is reported by collect.
func (w *Worker) deliver(ctx context.Context, wire ID, res Result) error {
	rt, ok := w.routes.take(wire)
	if !ok {
		return w.routes.missing(wire)
	}
	if rt.run == nil || rt.run.failed || rt.run.sched.Err() != nil {
		w.logger.Debug(ctx, "response dropped", KeyWireID, wire)
		return nil
	}
	sched := rt.run.sched
	var err error
	if res.Err != nil {
		err = sched.Reject(rt.local, res.Err)
	} else {
		err = sched.Resolve(rt.local, res.Payloads())
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	return nil
}

// collect moves a run's new Requests and finished replies to the outbox.
func (w *Worker) collect(ctx context.Context, r *run) {
	if r.failed {
		return
	}
	for _, req := range r.sched.Drain() {
		out := *req
		out.ID = w.routes.add(r, req.ID)
		w.out = append(w.out, &out)
	}
	if err := r.sched.Err(); err != nil {
		r.failed = true
		w.out = append(w.out, r.abandon(err)...)
		r.sched.Close()
		w.routes.orphan(r)
		w.metrics.run(ctx, r.name, "failed")
		w.logger.Error(ctx, "run failed", KeyRunID, r.id, KeyErr, err)
		return
	}
	replies := r.settled(w.converter)
	if len(replies) > 0 && r.sched.Done() {
		w.metrics.run(ctx, r.name, "completed")
	}
	w.out = append(w.out, replies...)
	if r.sched.Done() {
		// Coroutines still blocked when the run ends are never stepped again.
		w.out = append(w.out, r.abandon(&CanceledError{Reason: "run finished"})...)
	}
}

// target resolves the run and handler name of a signal or query.
func (w *Worker) target(req *Request) (*run, string, bool) {
	r, ok := w.lookup(req)
	if !ok {
		return nil, "", false
	}
	name := req.Options.GetString(OptionName)
	if name == "" {
		w.fail(req.ID, CodeBadRequest, "%s: %s is required", req.Name, OptionName)
		return nil, "", false
	}
	return r, name, true
}

func (w *Worker) lookup(req *Request) (*run, bool) {
	id := req.Options.GetString(OptionRunID)
	r, ok := w.runs[id]
	if !ok {
		w.fail(req.ID, CodeNotFound, "%s: no run %q", req.Name, id)
	}
	return r, ok
}

func (w *Worker) reply(c Command) { w.out = append(w.out, c) }

func (w *Worker) fail(id ID, code int, format string, args ...any) {
	w.reply(&Failure{ID: id, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (w *Worker) protocolError(ctx context.Context, err error) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		w.metrics.protocolError(ctx, pe.Kind)
	}
	w.logger.Error(ctx, "protocol error", KeyErr, err)
}

func (w *Worker) closeRuns() {
	for _, r := range w.order {
		r.sched.Close()
	}
	w.order = nil
	clear(w.runs)
}
