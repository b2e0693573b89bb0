// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

// route is the owner of one outgoing call on the wire. A nil run marks a
// call whose run was destroyed; its late response is dropped.
type route struct {
	run   *run
	local ID
}

// routeTable maps wire ids to the scheduler-local ids they were issued as.
// Every Scheduler numbers its calls from 1, so the worker renumbers them
// from a single Sequence before they reach the host.
type routeTable struct {
	seq    Sequence
	routes map[ID]route
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[ID]route)}
}

// add assigns the next wire id to a call of r.
func (t *routeTable) add(r *run, local ID) ID {
	wire := t.seq.Next()
	t.routes[wire] = route{run: r, local: local}
	return wire
}

// take removes and returns the route of wire. ok is false for ids the
// worker never issued or has already routed.
func (t *routeTable) take(wire ID) (route, bool) {
	rt, ok := t.routes[wire]
	if ok {
		delete(t.routes, wire)
	}
	return rt, ok
}

// orphan detaches every call of r.
func (t *routeTable) orphan(r *run) {
	for wire, rt := range t.routes {
		if rt.run == r {
			t.routes[wire] = route{local: rt.local}
		}
	}
}

// missing classifies a wire id take could not find.
func (t *routeTable) missing(wire ID) error {
	if wire != NoID && wire <= t.seq.Last() {
		return &ProtocolError{Kind: DuplicateResolution, ID: wire, Detail: "response already delivered"}
	}
	return &ProtocolError{Kind: UnknownCall, ID: wire, Detail: "no such outgoing call"}
}

func (t *routeTable) len() int { return len(t.routes) }
