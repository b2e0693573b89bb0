// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import "code.hybscloud.com/kont"

// frame is one suspended coroutine on a task's stack. A frame with a nil
// susp has finished with value and waits to be popped.
type frame struct {
	susp       *kont.Suspension[Result]
	value      Result
	onComplete func(Result) error
}

func (f *frame) finished() bool { return f.susp == nil }

func (f *frame) resume(v kont.Resumed) {
	f.value, f.susp = Advance(f.susp, v)
}

func (f *frame) discard() {
	if f.susp != nil {
		f.susp.Discard()
		f.susp = nil
	}
}

// task is a coroutine together with the nested coroutines it started.
// Only the last frame is ever stepped.
type task struct {
	seq     uint32
	frames  []*frame
	header  Header
	future  *Future
	waiting []*Future
	dead    bool
}

func (t *task) top() *frame { return t.frames[len(t.frames)-1] }

func (t *task) pop() *frame {
	f := t.top()
	t.frames[len(t.frames)-1] = nil
	t.frames = t.frames[:len(t.frames)-1]
	return f
}

func (t *task) blocked() bool { return len(t.waiting) > 0 }

// push steps body to its first suspension and makes it the innermost frame.
func (t *task) push(body kont.Expr[Result], onComplete func(Result) error) {
	v, susp := Step(body)
	t.frames = append(t.frames, &frame{susp: susp, value: v, onComplete: onComplete})
}

// unblock detaches t from every Future it waits on.
func (t *task) unblock() {
	for _, f := range t.waiting {
		f.unwait(t)
	}
	t.waiting = nil
}

// teardown discards frames innermost first without completing them.
func (t *task) teardown() {
	t.unblock()
	for len(t.frames) > 0 {
		t.pop().discard()
	}
	t.dead = true
}
