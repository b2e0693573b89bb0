// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"code.hybscloud.com/durable"
)

type named struct {
	durable.InterceptorBase
	name string
	log  *[]string
	stop bool
}

func (n named) HandleQuery(ctx context.Context, in *durable.QueryInput, next durable.Handler[*durable.QueryInput, durable.Payloads]) (durable.Payloads, error) {
	*n.log = append(*n.log, n.name)
	if n.stop {
		return nil, errors.New(n.name + " refused")
	}
	return next(ctx, in)
}

func queryChain(p durable.Pipeline[durable.Interceptor], log *[]string) durable.Handler[*durable.QueryInput, durable.Payloads] {
	var terminal durable.Handler[*durable.QueryInput, durable.Payloads] = func(_ context.Context, in *durable.QueryInput) (durable.Payloads, error) {
		*log = append(*log, "T")
		return nil, nil
	}
	return durable.With(p, terminal, durable.Interceptor.HandleQuery)
}

func TestPipelineOrder(t *testing.T) {
	var log []string
	p := durable.Prepare[durable.Interceptor](
		named{name: "A", log: &log},
		named{name: "B", log: &log},
		named{name: "C", log: &log},
	)
	h := queryChain(p, &log)
	if _, err := h(context.Background(), &durable.QueryInput{Name: "q"}); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if want := []string{"A", "B", "C", "T"}; !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestPipelineShortCircuit(t *testing.T) {
	var log []string
	p := durable.Prepare[durable.Interceptor](
		named{name: "A", log: &log},
		named{name: "B", log: &log, stop: true},
		named{name: "C", log: &log},
	)
	_, err := queryChain(p, &log)(context.Background(), &durable.QueryInput{})
	if err == nil || err.Error() != "B refused" {
		t.Fatalf("got %v, want B refused", err)
	}
	if want := []string{"A", "B"}; !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestPipelineImmutable(t *testing.T) {
	var log []string
	is := []durable.Interceptor{named{name: "A", log: &log}}
	p := durable.Prepare(is...)
	is[0] = named{name: "X", log: &log}
	q := p.Append(named{name: "B", log: &log})

	if p.Len() != 1 || q.Len() != 2 {
		t.Fatalf("Len got %d %d, want 1 2", p.Len(), q.Len())
	}
	_, _ = queryChain(p, &log)(context.Background(), &durable.QueryInput{})
	if want := []string{"A", "T"}; !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
	log = nil
	_, _ = queryChain(q, &log)(context.Background(), &durable.QueryInput{})
	if want := []string{"A", "B", "T"}; !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestPipelineEmpty(t *testing.T) {
	var log []string
	var p durable.Pipeline[durable.Interceptor]
	_, _ = queryChain(p, &log)(context.Background(), &durable.QueryInput{})
	if want := []string{"T"}; !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}
