// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package interceptors_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"code.hybscloud.com/durable"
	"code.hybscloud.com/durable/interceptors"
	"code.hybscloud.com/kont"
)

// entry is one recorded log line.
type entry struct {
	level, msg string
	keyvals    []any
}

// recorder is a durable.Logger that keeps every line.
type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) add(level, msg string, kv []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{level, msg, kv})
}

func (r *recorder) Debug(_ context.Context, msg string, kv ...any) { r.add("debug", msg, kv) }
func (r *recorder) Info(_ context.Context, msg string, kv ...any)  { r.add("info", msg, kv) }
func (r *recorder) Warn(_ context.Context, msg string, kv ...any)  { r.add("warn", msg, kv) }
func (r *recorder) Error(_ context.Context, msg string, kv ...any) { r.add("error", msg, kv) }

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.level + " " + e.msg
	}
	return out
}

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func activity(is ...durable.Interceptor) durable.Handler[*durable.ActivityInput, durable.Payloads] {
	terminal := durable.Handler[*durable.ActivityInput, durable.Payloads](func(_ context.Context, in *durable.ActivityInput) (durable.Payloads, error) {
		switch in.Name {
		case "fail":
			return nil, errors.New("activity broke")
		case "panic":
			panic("activity exploded")
		}
		return durable.Payloads{{Encoding: durable.EncodingRaw, Data: []byte(in.Name)}}, nil
	})
	return durable.With(durable.Prepare(is...), terminal, durable.Interceptor.ExecuteActivity)
}

func issue(is ...durable.Interceptor) durable.Handler[*durable.Request, *durable.Request] {
	terminal := durable.Handler[*durable.Request, *durable.Request](func(_ context.Context, req *durable.Request) (*durable.Request, error) {
		return req, nil
	})
	return durable.With(durable.Prepare(is...), terminal, durable.Interceptor.IssueRequest)
}

func TestLoggingActivity(t *testing.T) {
	rec := &recorder{}
	h := activity(interceptors.NewLogging(rec))
	_, err := h(context.Background(), &durable.ActivityInput{Name: "ok"})
	require.NoError(t, err)
	_, err = h(context.Background(), &durable.ActivityInput{Name: "fail"})
	require.Error(t, err)
	assert.Equal(t, []string{
		"debug activity started",
		"debug activity completed",
		"debug activity started",
		"error activity failed",
	}, rec.messages())
}

func TestLoggingWorkerCalls(t *testing.T) {
	rec := &recorder{}
	reg := durable.NewRegistry()
	require.NoError(t, reg.RegisterWorkflow("wf", func() *durable.Workflow {
		return &durable.Workflow{
			Main: func(durable.Payloads) kont.Eff[durable.Result] {
				return durable.CallDone(&durable.Request{Name: "step"})
			},
			Queries: map[string]func(durable.Payloads) (durable.Payloads, error){
				"bad": func(durable.Payloads) (durable.Payloads, error) { return nil, errors.New("no state") },
			},
		}
	}))
	w := durable.NewWorker(nil, reg, durable.WithWorkerInterceptors(interceptors.NewLogging(rec)))
	_, err := w.HandleBatch(context.Background(), durable.Tick{}, []durable.Command{
		&durable.Request{ID: 1, Name: durable.CommandStartWorkflow, Options: durable.NewOptions(durable.OptionRunID, "r", durable.OptionName, "wf")},
		&durable.Request{ID: 2, Name: durable.CommandInvokeQuery, Options: durable.NewOptions(durable.OptionRunID, "r", durable.OptionName, "bad")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"debug request issued",
		"info workflow started",
		"warn query failed",
	}, rec.messages())
}

func TestTracingActivity(t *testing.T) {
	sr, tracer := setupTestTracer()
	h := activity(interceptors.NewTracingWithTracer(tracer))

	_, err := h(context.Background(), &durable.ActivityInput{Name: "ok", Args: durable.Payloads{{}, {}}})
	require.NoError(t, err)
	_, err = h(context.Background(), &durable.ActivityInput{Name: "fail"})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "durable.activity.execute", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "ok", attrs[string(interceptors.AttrName)])
	assert.Equal(t, int64(2), attrs[string(interceptors.AttrArgs)])

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "activity broke", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1, "recorded error event")
}

func TestTracingWorkerSpans(t *testing.T) {
	sr, tracer := setupTestTracer()
	reg := durable.NewRegistry()
	require.NoError(t, reg.RegisterWorkflow("wf", func() *durable.Workflow {
		return &durable.Workflow{
			Main: func(durable.Payloads) kont.Eff[durable.Result] {
				return durable.CallDone(&durable.Request{Name: "step"})
			},
			Signals: map[string]func(durable.Payloads) kont.Eff[durable.Result]{
				"poke": func(durable.Payloads) kont.Eff[durable.Result] { return durable.Done(nil) },
			},
			Queries: map[string]func(durable.Payloads) (durable.Payloads, error){
				"state": func(durable.Payloads) (durable.Payloads, error) { return nil, nil },
			},
		}
	}))
	w := durable.NewWorker(nil, reg, durable.WithWorkerInterceptors(interceptors.NewTracingWithTracer(tracer)))
	opts := func(name string) durable.Options {
		return durable.NewOptions(durable.OptionRunID, "r", durable.OptionName, name)
	}
	_, err := w.HandleBatch(context.Background(), durable.Tick{}, []durable.Command{
		&durable.Request{ID: 1, Name: durable.CommandStartWorkflow, Options: opts("wf")},
		&durable.Request{ID: 2, Name: durable.CommandInvokeSignal, Options: opts("poke")},
		&durable.Request{ID: 3, Name: durable.CommandInvokeQuery, Options: opts("state")},
	})
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"durable.workflow.start", "durable.workflow.signal", "durable.workflow.query"}, names)
}

func TestTracingIssueRequestEvent(t *testing.T) {
	sr, tracer := setupTestTracer()
	ctx, span := tracer.Start(context.Background(), "batch")
	h := issue(interceptors.NewTracingWithTracer(tracer))
	_, err := h(ctx, &durable.Request{ID: 4, Name: "charge"})
	require.NoError(t, err)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "durable.request.issue", events[0].Name)

	// Without a span in ctx the event is discarded.
	_, err = h(context.Background(), &durable.Request{ID: 5, Name: "charge"})
	require.NoError(t, err)
}

func TestRecover(t *testing.T) {
	rec := &recorder{}
	h := activity(interceptors.NewRecover(rec))
	_, err := h(context.Background(), &durable.ActivityInput{Name: "panic"})
	var pe *durable.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "activity exploded", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, []string{"error handler panicked"}, rec.messages())

	res, err := h(context.Background(), &durable.ActivityInput{Name: "fine"})
	require.NoError(t, err)
	assert.Equal(t, "fine", string(res[0].Data))
}

func TestRecoverQuery(t *testing.T) {
	terminal := durable.Handler[*durable.QueryInput, durable.Payloads](func(context.Context, *durable.QueryInput) (durable.Payloads, error) {
		panic(fmt.Errorf("nil state"))
	})
	h := durable.With(durable.Prepare[durable.Interceptor](interceptors.NewRecover(nil)), terminal, durable.Interceptor.HandleQuery)
	_, err := h(context.Background(), &durable.QueryInput{Name: "q"})
	var pe *durable.PanicError
	require.ErrorAs(t, err, &pe)
}

func TestStaticHeader(t *testing.T) {
	tenant := durable.Payload{Encoding: durable.EncodingRaw, Data: []byte("acme")}
	region := durable.Payload{Encoding: durable.EncodingRaw, Data: []byte("eu")}
	sh := interceptors.NewStaticHeader(durable.Header{"tenant": tenant, "region": region})

	own := durable.Payload{Encoding: durable.EncodingRaw, Data: []byte("us")}
	orig := durable.Header{"region": own}
	out, err := issue(sh)(context.Background(), &durable.Request{Name: "x", Header: orig})
	require.NoError(t, err)
	assert.Equal(t, durable.Header{"tenant": tenant, "region": own}, out.Header)
	assert.Len(t, orig, 1, "caller header untouched")

	var seen durable.Header
	terminal := durable.Handler[*durable.ActivityInput, durable.Payloads](func(_ context.Context, in *durable.ActivityInput) (durable.Payloads, error) {
		seen = in.Header
		return nil, nil
	})
	_, err = durable.With(durable.Prepare[durable.Interceptor](sh), terminal, durable.Interceptor.ExecuteActivity)(context.Background(), &durable.ActivityInput{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, durable.Header{"tenant": tenant, "region": region}, seen)
}

func TestStaticHeaderOnRequests(t *testing.T) {
	tenant := durable.Payload{Encoding: durable.EncodingRaw, Data: []byte("acme")}
	body := durable.CallDone(&durable.Request{Name: "charge"})
	_, issued, err := durable.Exec(context.Background(), body,
		func(*durable.Request) durable.Result { return durable.Ok(nil) },
		durable.WithInterceptors(durable.Prepare[durable.Interceptor](interceptors.NewStaticHeader(durable.Header{"tenant": tenant}))),
	)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, tenant, issued[0].Header["tenant"])
}
