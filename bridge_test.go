// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable_test

import (
	"context"
	"errors"
	"testing"

	"code.hybscloud.com/durable"
	"code.hybscloud.com/kont"
)

func TestReifyContToExpr(t *testing.T) {
	cont := durable.CallBind(req(t, "a", "x"), func(r durable.Result) kont.Eff[durable.Result] {
		return durable.Done(decodeString(t, r.Payloads()))
	})
	r, _, err := durable.ExecExpr(context.Background(), durable.Reify(cont), echo(t))
	if err != nil {
		t.Fatalf("ExecExpr: %v", err)
	}
	if r.Value != "a:x" {
		t.Fatalf("got %v, want a:x", r.Value)
	}
}

func TestReflectExprToCont(t *testing.T) {
	expr := durable.ExprCallBind(req(t, "a", "x"), func(r durable.Result) kont.Expr[durable.Result] {
		return durable.ExprDone(decodeString(t, r.Payloads()))
	})
	// A reflected Expr composes with Cont-world Bind.
	cont := kont.Bind(durable.Reflect(expr), func(r durable.Result) kont.Eff[durable.Result] {
		return durable.CallBind(req(t, "b", r.Value.(string)), func(b durable.Result) kont.Eff[durable.Result] {
			return durable.Done(decodeString(t, b.Payloads()))
		})
	})
	r, _, err := durable.Exec(context.Background(), cont, echo(t))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if r.Value != "b:a:x" {
		t.Fatalf("got %v, want b:a:x", r.Value)
	}
}

func TestRoundTripReflectReify(t *testing.T) {
	expr := durable.ExprCallDone(req(t, "a", "y"))
	r, _, err := durable.ExecExpr(context.Background(), durable.Reify(durable.Reflect(expr)), echo(t))
	if err != nil {
		t.Fatalf("ExecExpr: %v", err)
	}
	if got := decodeString(t, r.Payloads()); got != "a:y" {
		t.Fatalf("got %q, want a:y", got)
	}
}

func TestLift(t *testing.T) {
	calls := 0
	ok := durable.Lift(func() (any, error) {
		calls++
		return 42, nil
	})
	r, issued, err := durable.Exec(context.Background(), ok, echo(t))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if r.Value != 42 || calls != 1 || len(issued) != 0 {
		t.Fatalf("got %v after %d calls and %d requests", r.Value, calls, len(issued))
	}

	cause := errors.New("parse")
	bad := durable.Lift(func() (any, error) { return nil, cause })
	r, _, err = durable.Exec(context.Background(), bad, echo(t))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !errors.Is(r.Err, cause) {
		t.Fatalf("got %v, want %v", r.Err, cause)
	}
}
