// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package durable is the deterministic execution core of a workflow worker.
// Workflow code is written as suspendable coroutines via algebraic effects
// on [code.hybscloud.com/kont] and runs under a host that replays history:
// the same inputs and the same responses always produce the same ordered
// sequence of outgoing requests.
//
// # Architecture
//
//   - Commands: [Request], [Success] and [Failure], batched by a [Codec]. [JSONCodec] writes one record per line; [ProtoCodec] writes length-prefixed protobuf wire records.
//   - Correlation: a [Correlator] per run assigns call ids from 1 and resolves each exactly once.
//   - Scheduling: a [Scheduler] steps every coroutine of a run one effect at a time. Only the innermost frame of a task is stepped; ready tasks resume in wake order.
//   - Interception: [Prepare] and [With] build immutable [Interceptor] chains around activities, workflow starts, signals, queries and issued requests.
//   - Worker: a [Worker] serves a [Registry] over a [Transport], renumbering each run's call ids onto the wire.
//
// # Effects
//
//   - Operations: [Call], [Start], [Await], [Select], [Nested], [Spawn], [Now], [GetHeader], [SetHeader].
//   - Cont-world: [CallBind], [StartBind], [AwaitBind], [SelectBind], [NestedBind], [SpawnBind], [NowBind], [Done], [Failed].
//   - Expr-world: allocation-light variants like [ExprCallBind], [ExprAwaitBind], etc. Bridge via [Reify] and [Reflect].
//   - Recursive: [Loop], [ExprLoop] and [Retry].
//
// # Determinism
//
// Coroutine code must not read clocks, spawn goroutines, iterate maps or
// perform I/O. Time comes from [Now], I/O from activities reached through
// [Call]. Panics terminate only the panicking coroutine, with a
// [*PanicError] result.
//
// # Example
//
//	greet := durable.CallBind(&durable.Request{Name: "greet", Payloads: args},
//		func(r durable.Result) kont.Eff[durable.Result] {
//			var s string
//			if err := r.Decode(&s); err != nil {
//				return durable.Failed(err)
//			}
//			return durable.Done(s)
//		})
//	s := durable.NewScheduler(ctx, greet)
//	_ = s.Start()
//	reqs := s.Drain() // one Request, id 1
//	_ = s.Resolve(reqs[0].ID, answer)
//	fmt.Println(s.Done(), s.Result())
package durable
