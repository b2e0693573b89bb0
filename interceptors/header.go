// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package interceptors

import (
	"context"

	"code.hybscloud.com/durable"
)

// StaticHeader stamps fixed header values on every issued request and
// every activity input. Values already present are kept.
type StaticHeader struct {
	durable.InterceptorBase
	values durable.Header
}

// NewStaticHeader copies values.
func NewStaticHeader(values durable.Header) *StaticHeader {
	return &StaticHeader{values: values.Clone()}
}

func (s *StaticHeader) IssueRequest(ctx context.Context, req *durable.Request, next durable.Handler[*durable.Request, *durable.Request]) (*durable.Request, error) {
	req.Header = s.fill(req.Header)
	return next(ctx, req)
}

func (s *StaticHeader) ExecuteActivity(ctx context.Context, in *durable.ActivityInput, next durable.Handler[*durable.ActivityInput, durable.Payloads]) (durable.Payloads, error) {
	in.Header = s.fill(in.Header)
	return next(ctx, in)
}

func (s *StaticHeader) fill(h durable.Header) durable.Header {
	if len(s.values) == 0 {
		return h
	}
	out := h.Clone()
	if out == nil {
		out = make(durable.Header, len(s.values))
	}
	for k, v := range s.values {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
