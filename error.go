// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"errors"
	"fmt"
)

// Failure codes carried on the wire.
const (
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeConflict    = 409
	CodeApplication = 422
	CodeCanceled    = 499
	CodeInternal    = 500
)

var (
	// ErrProtocol marks every protocol error. Protocol errors mean the
	// correlation or replay contract is already broken; they are fatal to
	// the unit of work and must never be swallowed.
	ErrProtocol = errors.New("durable: protocol error")

	// ErrMalformedFrame reports an undecodable or illegal record.
	ErrMalformedFrame = errors.New("durable: malformed frame")

	// ErrUnknownCall reports a response for an id that was never issued.
	ErrUnknownCall = errors.New("durable: unknown call")

	// ErrDuplicateResolution reports a second response for a resolved id.
	ErrDuplicateResolution = errors.New("durable: duplicate resolution")

	// ErrCanceled is matched by every cancellation fault.
	ErrCanceled = errors.New("durable: canceled")

	// ErrUnhandledEffect reports an operation the scheduler cannot dispatch.
	ErrUnhandledEffect = errors.New("durable: unhandled effect")

	// ErrClosed reports use of a closed scheduler or transport.
	ErrClosed = errors.New("durable: closed")
)

// ProtocolKind names the protocol violation.
type ProtocolKind uint8

const (
	MalformedFrame ProtocolKind = iota + 1
	UnknownCall
	DuplicateResolution
	HostFailure
)

func (k ProtocolKind) String() string {
	switch k {
	case MalformedFrame:
		return "malformed frame"
	case UnknownCall:
		return "unknown call"
	case DuplicateResolution:
		return "duplicate resolution"
	case HostFailure:
		return "host failure"
	}
	return fmt.Sprintf("protocol kind %d", uint8(k))
}

// ProtocolError is a desynchronized or illegal exchange with the host.
type ProtocolError struct {
	Kind   ProtocolKind
	ID     ID
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.ID != NoID {
		return fmt.Sprintf("durable: %s (id %d): %s", e.Kind, e.ID, e.Detail)
	}
	return fmt.Sprintf("durable: %s: %s", e.Kind, e.Detail)
}

// Unwrap exposes ErrProtocol and the kind sentinel to errors.Is.
func (e *ProtocolError) Unwrap() []error {
	errs := []error{ErrProtocol}
	switch e.Kind {
	case MalformedFrame:
		errs = append(errs, ErrMalformedFrame)
	case UnknownCall:
		errs = append(errs, ErrUnknownCall)
	case DuplicateResolution:
		errs = append(errs, ErrDuplicateResolution)
	}
	return errs
}

func malformed(format string, args ...any) error {
	return &ProtocolError{Kind: MalformedFrame, Detail: fmt.Sprintf(format, args...)}
}

// CanceledError is the fault injected into coroutines whose calls were
// canceled. It is distinct from application failures.
type CanceledError struct {
	Reason string
}

func (e *CanceledError) Error() string {
	if e.Reason == "" {
		return ErrCanceled.Error()
	}
	return ErrCanceled.Error() + ": " + e.Reason
}

func (e *CanceledError) Is(target error) bool { return target == ErrCanceled }

// IsCanceled reports whether err is a cancellation fault.
func IsCanceled(err error) bool { return errors.Is(err, ErrCanceled) }

// ApplicationError is a failure raised by workflow or activity code.
type ApplicationError struct {
	Code    int
	Message string
	Details Payloads
	Cause   error
}

// NewApplicationError returns an ApplicationError with encoded details.
func NewApplicationError(message string, details ...any) error {
	ps, err := DefaultConverter.ToPayloads(details...)
	if err != nil {
		return fmt.Errorf("encode details for %q: %w", message, err)
	}
	return &ApplicationError{Code: CodeApplication, Message: message, Details: ps}
}

func (e *ApplicationError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ApplicationError) Unwrap() error { return e.Cause }

// RemoteError is a Failure received from the far side.
type RemoteError struct {
	Code    int
	Message string
	Data    Payloads
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote failure %d: %s", e.Code, e.Message)
}

// FatalError is an unrecoverable engine fault.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "durable: fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// PanicError is a recovered panic raised by coroutine or activity code.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// failureOf converts err into the Failure answering call id.
func failureOf(id ID, err error) *Failure {
	f := &Failure{ID: id, Code: CodeInternal, Message: err.Error()}
	var (
		canceled *CanceledError
		app      *ApplicationError
		remote   *RemoteError
		proto    *ProtocolError
	)
	switch {
	case IsCanceled(err):
		f.Code = CodeCanceled
		if errors.As(err, &canceled) {
			f.Message = canceled.Reason
		}
	case errors.As(err, &app):
		f.Code, f.Data = app.Code, app.Details
		if f.Code == 0 {
			f.Code = CodeApplication
		}
	case errors.As(err, &remote):
		f.Code, f.Data = remote.Code, remote.Data
	case errors.As(err, &proto):
		f.Code = CodeBadRequest
	}
	return f
}
