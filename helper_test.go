// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable_test

import (
	"context"
	"testing"

	"code.hybscloud.com/durable"
	"code.hybscloud.com/kont"
)

// req builds a request template with JSON-encoded args.
func req(tb testing.TB, name string, args ...any) *durable.Request {
	tb.Helper()
	return &durable.Request{Name: name, Payloads: payloads(tb, args...)}
}

// payloads encodes values with the default converter.
func payloads(tb testing.TB, values ...any) durable.Payloads {
	tb.Helper()
	ps, err := durable.DefaultConverter.ToPayloads(values...)
	if err != nil {
		tb.Fatalf("encode %v: %v", values, err)
	}
	return ps
}

// decodeString decodes the first payload of ps as a string.
func decodeString(tb testing.TB, ps durable.Payloads) string {
	tb.Helper()
	var s string
	if err := ps.Decode(&s); err != nil {
		tb.Fatalf("decode %v: %v", ps, err)
	}
	return s
}

// start returns a started Scheduler for body.
func start(tb testing.TB, body kont.Eff[durable.Result], opts ...durable.SchedulerOption) *durable.Scheduler {
	tb.Helper()
	s := durable.NewScheduler(context.Background(), body, opts...)
	if err := s.Start(); err != nil {
		tb.Fatalf("Start: %v", err)
	}
	tb.Cleanup(s.Close)
	return s
}

// names returns the command names of reqs in order.
func names(reqs []*durable.Request) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Name
	}
	return out
}

// echo answers every request with "<name>:<first arg>".
func echo(tb testing.TB) durable.Responder {
	return func(r *durable.Request) durable.Result {
		var arg string
		_ = r.Payloads.Decode(&arg)
		return durable.Ok(payloads(tb, r.Name+":"+arg))
	}
}
