// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"fmt"
	"maps"
	"slices"
)

// Correlator maps outstanding call ids to the Futures awaiting them.
// A Correlator belongs to exactly one Scheduler and is never shared.
// Ids start at 1 and increase monotonically for the Correlator's lifetime.
type Correlator struct {
	last    ID
	pending map[ID]*Future
	ids     map[*Future]ID
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[ID]*Future),
		ids:     make(map[*Future]ID),
	}
}

// Register allocates the next id and its Future.
func (c *Correlator) Register() (ID, *Future, error) {
	if c.last == MaxID {
		return NoID, nil, &FatalError{Err: fmt.Errorf("correlation ids exhausted after %d", c.last)}
	}
	c.last++
	f := &Future{id: c.last}
	c.pending[c.last] = f
	c.ids[f] = c.last
	return c.last, f, nil
}

// Resolve settles id with a success value.
func (c *Correlator) Resolve(id ID, values Payloads) (*Future, error) {
	return c.settle(id, Ok(values))
}

// Reject settles id with a fault.
func (c *Correlator) Reject(id ID, err error) (*Future, error) {
	return c.settle(id, Fail(err))
}

// settle removes id exactly once. Unknown and already-settled ids are
// protocol errors and leave every other entry untouched.
func (c *Correlator) settle(id ID, r Result) (*Future, error) {
	f, ok := c.pending[id]
	if !ok {
		return nil, c.missing(id)
	}
	delete(c.pending, id)
	delete(c.ids, f)
	if err := f.settle(r); err != nil {
		return nil, &FatalError{Err: fmt.Errorf("call %d: %w", id, err)}
	}
	return f, nil
}

func (c *Correlator) missing(id ID) error {
	if id != NoID && id <= c.last {
		return &ProtocolError{Kind: DuplicateResolution, ID: id, Detail: "call already resolved"}
	}
	return &ProtocolError{Kind: UnknownCall, ID: id, Detail: "call was never issued"}
}

// Lookup returns the id a pending Future is registered under.
func (c *Correlator) Lookup(f *Future) (ID, bool) {
	id, ok := c.ids[f]
	return id, ok
}

// IsPending reports whether id is outstanding.
func (c *Correlator) IsPending(id ID) bool {
	_, ok := c.pending[id]
	return ok
}

// Pending returns outstanding ids in ascending order.
func (c *Correlator) Pending() []ID {
	return slices.Sorted(maps.Keys(c.pending))
}

// Len returns the number of outstanding calls.
func (c *Correlator) Len() int { return len(c.pending) }

// Last returns the most recently issued id.
func (c *Correlator) Last() ID { return c.last }

// detach drops id without settling its Future. Used on teardown only.
func (c *Correlator) detach(id ID) {
	if f, ok := c.pending[id]; ok {
		delete(c.ids, f)
		delete(c.pending, id)
	}
}
