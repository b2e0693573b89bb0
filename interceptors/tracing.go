// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package interceptors

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"code.hybscloud.com/durable"
)

// TracerName is the instrumentation scope of Tracing.
const TracerName = "code.hybscloud.com/durable"

// Span attribute keys.
const (
	AttrRunID    = attribute.Key("durable.run_id")
	AttrWorkflow = attribute.Key("durable.workflow")
	AttrName     = attribute.Key("durable.name")
	AttrArgs     = attribute.Key("durable.args")
)

// Tracing opens a span around activities, workflow starts, signals and
// queries. Issued requests are recorded as events on the span in ctx, if
// any, since the scheduler runs them on the worker loop.
type Tracing struct {
	durable.InterceptorBase
	tracer trace.Tracer
}

// NewTracing uses the global TracerProvider.
func NewTracing() *Tracing {
	return NewTracingWithTracer(otel.Tracer(TracerName))
}

// NewTracingWithTracer uses tracer.
func NewTracingWithTracer(tracer trace.Tracer) *Tracing {
	return &Tracing{tracer: tracer}
}

func (t *Tracing) ExecuteActivity(ctx context.Context, in *durable.ActivityInput, next durable.Handler[*durable.ActivityInput, durable.Payloads]) (durable.Payloads, error) {
	ctx, span := t.tracer.Start(ctx, "durable.activity.execute",
		trace.WithAttributes(AttrName.String(in.Name), AttrArgs.Int(len(in.Args))),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()
	res, err := next(ctx, in)
	finish(span, err)
	return res, err
}

func (t *Tracing) StartWorkflow(ctx context.Context, in *durable.WorkflowInput, next durable.Handler[*durable.WorkflowInput, *durable.Future]) (*durable.Future, error) {
	ctx, span := t.tracer.Start(ctx, "durable.workflow.start",
		trace.WithAttributes(AttrRunID.String(in.RunID), AttrWorkflow.String(in.Name), AttrArgs.Int(len(in.Args))),
	)
	defer span.End()
	f, err := next(ctx, in)
	finish(span, err)
	return f, err
}

func (t *Tracing) HandleSignal(ctx context.Context, in *durable.SignalInput, next durable.Handler[*durable.SignalInput, *durable.Future]) (*durable.Future, error) {
	ctx, span := t.tracer.Start(ctx, "durable.workflow.signal",
		trace.WithAttributes(AttrRunID.String(in.RunID), AttrName.String(in.Name)),
	)
	defer span.End()
	f, err := next(ctx, in)
	finish(span, err)
	return f, err
}

func (t *Tracing) HandleQuery(ctx context.Context, in *durable.QueryInput, next durable.Handler[*durable.QueryInput, durable.Payloads]) (durable.Payloads, error) {
	ctx, span := t.tracer.Start(ctx, "durable.workflow.query",
		trace.WithAttributes(AttrRunID.String(in.RunID), AttrName.String(in.Name)),
	)
	defer span.End()
	res, err := next(ctx, in)
	finish(span, err)
	return res, err
}

func (t *Tracing) IssueRequest(ctx context.Context, req *durable.Request, next durable.Handler[*durable.Request, *durable.Request]) (*durable.Request, error) {
	trace.SpanFromContext(ctx).AddEvent("durable.request.issue", trace.WithAttributes(
		AttrName.String(req.Name),
		attribute.Int64("durable.call_id", int64(req.ID)),
	))
	return next(ctx, req)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
