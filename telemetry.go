// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"goa.design/clue/log"
)

// Log keys.
const (
	KeyRunID    = "run_id"
	KeyWorkflow = "workflow"
	KeyCommand  = "command"
	KeyCallID   = "call_id"
	KeyWireID   = "wire_id"
	KeyCount    = "count"
	KeyWorker   = "worker_id"
	KeyReason   = "reason"
	KeyErr      = "err"
)

// Logger is the structured logger used by the engine. keyvals alternate
// string keys and values.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// ClueLogger writes through goa.design/clue/log. Format and debug level
// come from the context (log.Context with log.WithFormat, log.WithDebug).
type ClueLogger struct{}

// NewClueLogger returns a Logger backed by clue.
func NewClueLogger() Logger { return ClueLogger{} }

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, fielders(msg, keyvals)...)
}

// Error logs msg at error level. A value under KeyErr becomes the clue error.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	var err error
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, _ := keyvals[i].(string); k == KeyErr {
			err, _ = keyvals[i+1].(error)
		}
	}
	log.Error(ctx, err, fielders(msg, keyvals)...)
}

// fielders pairs keyvals into clue fields. A dangling key pairs with nil
// and non-string keys are skipped.
func fielders(msg string, keyvals []any) []log.Fielder {
	fs := make([]log.Fielder, 0, 1+len(keyvals)/2)
	fs = append(fs, log.KV{K: "msg", V: msg})
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fs = append(fs, log.KV{K: k, V: v})
	}
	return fs
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

// Metrics records engine instruments on an OpenTelemetry meter.
// A nil *Metrics records nothing.
type Metrics struct {
	batches        metric.Int64Counter
	commands       metric.Int64Counter
	runs           metric.Int64Counter
	protocolErrors metric.Int64Counter
	activity       metric.Float64Histogram
}

// MeterName is the instrumentation scope of NewMetrics.
const MeterName = "code.hybscloud.com/durable"

// NewMetrics creates the engine instruments on meter. A nil meter uses the
// global MeterProvider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	var (
		m    Metrics
		err  error
		errs []error
	)
	m.batches, err = meter.Int64Counter("durable.batches", metric.WithDescription("Batches handled."))
	errs = append(errs, err)
	m.commands, err = meter.Int64Counter("durable.commands", metric.WithDescription("Commands received and sent."))
	errs = append(errs, err)
	m.runs, err = meter.Int64Counter("durable.runs", metric.WithDescription("Workflow run lifecycle events."))
	errs = append(errs, err)
	m.protocolErrors, err = meter.Int64Counter("durable.protocol_errors", metric.WithDescription("Protocol violations."))
	errs = append(errs, err)
	m.activity, err = meter.Float64Histogram("durable.activity.duration", metric.WithUnit("s"),
		metric.WithDescription("Activity execution time."))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) batch(ctx context.Context, in, out int) {
	if m == nil {
		return
	}
	m.batches.Add(ctx, 1)
	m.commands.Add(ctx, int64(in), metric.WithAttributes(attribute.String("direction", "in")))
	m.commands.Add(ctx, int64(out), metric.WithAttributes(attribute.String("direction", "out")))
}

// run records a lifecycle event: started, completed, failed or destroyed.
func (m *Metrics) run(ctx context.Context, workflow, event string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String(KeyWorkflow, workflow),
		attribute.String("event", event),
	))
}

func (m *Metrics) protocolError(ctx context.Context, kind ProtocolKind) {
	if m == nil {
		return
	}
	m.protocolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (m *Metrics) activityDone(ctx context.Context, name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.activity.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("activity", name),
		attribute.Bool("error", err != nil),
	))
}
