// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import "context"

// WorkflowInput describes a workflow run being started.
type WorkflowInput struct {
	RunID  string
	Name   string
	Args   Payloads
	Header Header
	Tick   Tick
}

// SignalInput describes a signal delivered to a running workflow.
type SignalInput struct {
	RunID  string
	Name   string
	Args   Payloads
	Header Header
}

// QueryInput describes a read-only query against a running workflow.
type QueryInput struct {
	RunID string
	Name  string
	Args  Payloads
}

// ActivityInput describes one activity execution.
type ActivityInput struct {
	Name    string
	Args    Payloads
	Header  Header
	Options Options
}

// Interceptor wraps the calls entering and leaving the engine. Every method
// receives next and must call it at most once to continue the chain.
// Embed InterceptorBase to override a subset.
type Interceptor interface {
	// ExecuteActivity wraps an activity function.
	ExecuteActivity(ctx context.Context, in *ActivityInput, next Handler[*ActivityInput, Payloads]) (Payloads, error)

	// StartWorkflow wraps the creation of a run. The Future resolves when
	// the main coroutine finishes.
	StartWorkflow(ctx context.Context, in *WorkflowInput, next Handler[*WorkflowInput, *Future]) (*Future, error)

	// HandleSignal wraps the start of a signal coroutine.
	HandleSignal(ctx context.Context, in *SignalInput, next Handler[*SignalInput, *Future]) (*Future, error)

	// HandleQuery wraps a synchronous query.
	HandleQuery(ctx context.Context, in *QueryInput, next Handler[*QueryInput, Payloads]) (Payloads, error)

	// IssueRequest wraps every Request a coroutine issues. It runs on the
	// scheduler's goroutine and must be deterministic. The request id is
	// fixed and cannot be changed.
	IssueRequest(ctx context.Context, req *Request, next Handler[*Request, *Request]) (*Request, error)
}

// InterceptorBase passes every call through unchanged.
type InterceptorBase struct{}

var _ Interceptor = InterceptorBase{}

func (InterceptorBase) ExecuteActivity(ctx context.Context, in *ActivityInput, next Handler[*ActivityInput, Payloads]) (Payloads, error) {
	return next(ctx, in)
}

func (InterceptorBase) StartWorkflow(ctx context.Context, in *WorkflowInput, next Handler[*WorkflowInput, *Future]) (*Future, error) {
	return next(ctx, in)
}

func (InterceptorBase) HandleSignal(ctx context.Context, in *SignalInput, next Handler[*SignalInput, *Future]) (*Future, error) {
	return next(ctx, in)
}

func (InterceptorBase) HandleQuery(ctx context.Context, in *QueryInput, next Handler[*QueryInput, Payloads]) (Payloads, error) {
	return next(ctx, in)
}

func (InterceptorBase) IssueRequest(ctx context.Context, req *Request, next Handler[*Request, *Request]) (*Request, error) {
	return next(ctx, req)
}
