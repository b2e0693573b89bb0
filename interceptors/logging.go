// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package interceptors provides stock durable.Interceptors: logging,
// tracing, panic recovery and header propagation.
package interceptors

import (
	"context"
	"time"

	"code.hybscloud.com/durable"
)

// Logging logs the boundaries of every intercepted call.
type Logging struct {
	durable.InterceptorBase
	logger durable.Logger
}

// NewLogging logs through l. A nil l uses the clue logger.
func NewLogging(l durable.Logger) *Logging {
	if l == nil {
		l = durable.NewClueLogger()
	}
	return &Logging{logger: l}
}

func (l *Logging) ExecuteActivity(ctx context.Context, in *durable.ActivityInput, next durable.Handler[*durable.ActivityInput, durable.Payloads]) (durable.Payloads, error) {
	start := time.Now()
	l.logger.Debug(ctx, "activity started", durable.KeyCommand, in.Name)
	res, err := next(ctx, in)
	if err != nil {
		l.logger.Error(ctx, "activity failed", durable.KeyCommand, in.Name, "duration", time.Since(start), durable.KeyErr, err)
		return res, err
	}
	l.logger.Debug(ctx, "activity completed", durable.KeyCommand, in.Name, "duration", time.Since(start))
	return res, nil
}

func (l *Logging) StartWorkflow(ctx context.Context, in *durable.WorkflowInput, next durable.Handler[*durable.WorkflowInput, *durable.Future]) (*durable.Future, error) {
	f, err := next(ctx, in)
	if err != nil {
		l.logger.Warn(ctx, "workflow start failed", durable.KeyRunID, in.RunID, durable.KeyWorkflow, in.Name, durable.KeyErr, err)
		return f, err
	}
	l.logger.Info(ctx, "workflow started", durable.KeyRunID, in.RunID, durable.KeyWorkflow, in.Name)
	return f, nil
}

func (l *Logging) HandleSignal(ctx context.Context, in *durable.SignalInput, next durable.Handler[*durable.SignalInput, *durable.Future]) (*durable.Future, error) {
	l.logger.Debug(ctx, "signal received", durable.KeyRunID, in.RunID, durable.KeyCommand, in.Name)
	return next(ctx, in)
}

func (l *Logging) HandleQuery(ctx context.Context, in *durable.QueryInput, next durable.Handler[*durable.QueryInput, durable.Payloads]) (durable.Payloads, error) {
	res, err := next(ctx, in)
	if err != nil {
		l.logger.Warn(ctx, "query failed", durable.KeyRunID, in.RunID, durable.KeyCommand, in.Name, durable.KeyErr, err)
	}
	return res, err
}

func (l *Logging) IssueRequest(ctx context.Context, req *durable.Request, next durable.Handler[*durable.Request, *durable.Request]) (*durable.Request, error) {
	l.logger.Debug(ctx, "request issued", durable.KeyCommand, req.Name, durable.KeyCallID, req.ID)
	return next(ctx, req)
}
