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

// BenchmarkSchedulerCall measures one call issued, drained and resolved.
func BenchmarkSchedulerCall(b *testing.B) {
	r := req(b, "work")
	result := payloads(b, "ok")
	b.ReportAllocs()
	for b.Loop() {
		s := durable.NewScheduler(context.Background(), durable.CallDone(r))
		if err := s.Start(); err != nil {
			b.Fatal(err)
		}
		_ = s.Drain()
		if err := s.Resolve(1, result); err != nil {
			b.Fatal(err)
		}
		s.Close()
	}
}

// BenchmarkExprSchedulerCall measures the Expr-world equivalent.
func BenchmarkExprSchedulerCall(b *testing.B) {
	r := req(b, "work")
	result := payloads(b, "ok")
	b.ReportAllocs()
	for b.Loop() {
		s := durable.NewSchedulerExpr(context.Background(), durable.ExprCallDone(r))
		if err := s.Start(); err != nil {
			b.Fatal(err)
		}
		_ = s.Drain()
		if err := s.Resolve(1, result); err != nil {
			b.Fatal(err)
		}
		s.Close()
	}
}

// BenchmarkExecFanOut measures eight concurrent calls awaited together.
func BenchmarkExecFanOut(b *testing.B) {
	reqs := make([]*durable.Request, 8)
	for i := range reqs {
		reqs[i] = req(b, "shard", i)
	}
	respond := func(*durable.Request) durable.Result { return durable.Ok(nil) }
	b.ReportAllocs()
	for b.Loop() {
		var start func(i int, fs []*durable.Future) kont.Eff[durable.Result]
		start = func(i int, fs []*durable.Future) kont.Eff[durable.Result] {
			if i == len(reqs) {
				return durable.AwaitAll(fs)
			}
			return durable.StartBind(reqs[i], func(f *durable.Future) kont.Eff[durable.Result] {
				return start(i+1, append(fs, f))
			})
		}
		if _, _, err := durable.Exec(context.Background(), start(0, nil), respond); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRecLoop measures 100 pure Loop iterations.
func BenchmarkRecLoop(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		body := durable.Loop(0, func(n int) kont.Eff[kont.Either[int, durable.Result]] {
			if n == 100 {
				return kont.Pure(kont.Right[int, durable.Result](durable.Ok(n)))
			}
			return kont.Pure(kont.Left[int, durable.Result](n + 1))
		})
		durable.Step(durable.Reify(body))
	}
}

func benchBatch(b *testing.B) []durable.Command {
	b.Helper()
	return []durable.Command{
		&durable.Request{ID: 1, Name: "charge", Options: durable.NewOptions("timeout", 30), Payloads: payloads(b, "card", 100)},
		&durable.Success{ID: 2, Result: payloads(b, "ok")},
		&durable.Failure{ID: 3, Code: 503, Message: "busy"},
	}
}

func benchmarkEncode(b *testing.B, name string) {
	codec := durable.GetCodec(name)
	batch := benchBatch(b)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := codec.Encode(batch); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkDecode(b *testing.B, name string) {
	codec := durable.GetCodec(name)
	data, err := codec.Encode(benchBatch(b))
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		if _, err := codec.Decode(data, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJSONEncode(b *testing.B)  { benchmarkEncode(b, "json") }
func BenchmarkJSONDecode(b *testing.B)  { benchmarkDecode(b, "json") }
func BenchmarkProtoEncode(b *testing.B) { benchmarkEncode(b, "proto") }
func BenchmarkProtoDecode(b *testing.B) { benchmarkDecode(b, "proto") }
