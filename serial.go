// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import "code.hybscloud.com/atomix"

// Sequence is a monotonically increasing counter safe for concurrent use.
// The zero value starts at 1.
type Sequence struct {
	n atomix.Uint32
}

// Next returns the next value.
func (s *Sequence) Next() uint32 { return s.n.Add(1) }

// Last returns the most recent value, or 0.
func (s *Sequence) Last() uint32 { return s.n.Load() }
