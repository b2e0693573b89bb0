// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"code.hybscloud.com/kont"
)

var (
	ErrNoSuchWorkflow = errors.New("no such workflow")
	ErrNoSuchActivity = errors.New("no such activity")
	ErrNoSuchHandler  = errors.New("no such handler")
	ErrDuplicateName  = errors.New("name already registered")
)

// Workflow is the code of one workflow run. Main is the main coroutine;
// Signals start additional coroutines inside the run; Queries read run
// state synchronously and must not block or mutate it.
type Workflow struct {
	Main    func(args Payloads) kont.Eff[Result]
	Signals map[string]func(args Payloads) kont.Eff[Result]
	Queries map[string]func(args Payloads) (Payloads, error)
}

// WorkflowFactory builds the Workflow of a new run. Handlers returned by
// one call may share run-local state.
type WorkflowFactory func() *Workflow

// ActivityFunc executes one activity. Activities run outside the
// deterministic scheduler and may perform I/O.
type ActivityFunc func(ctx context.Context, args Payloads) (Payloads, error)

// WorkflowFinder resolves workflow names.
type WorkflowFinder interface {
	FindWorkflow(name string) (WorkflowFactory, bool)
}

// ActivityFinder resolves activity names.
type ActivityFinder interface {
	FindActivity(name string) (ActivityFunc, bool)
}

// Registry maps names to workflows and activities. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	workflows  map[string]WorkflowFactory
	activities map[string]ActivityFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows:  make(map[string]WorkflowFactory),
		activities: make(map[string]ActivityFunc),
	}
}

// RegisterWorkflow associates factory with name.
func (r *Registry) RegisterWorkflow(name string, factory WorkflowFactory) error {
	if name == "" || factory == nil {
		return errors.New("register workflow: empty name or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[name]; ok {
		return fmt.Errorf("register workflow %q: %w", name, ErrDuplicateName)
	}
	r.workflows[name] = factory
	return nil
}

// RegisterActivity associates fn with name.
func (r *Registry) RegisterActivity(name string, fn ActivityFunc) error {
	if name == "" || fn == nil {
		return errors.New("register activity: empty name or nil function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[name]; ok {
		return fmt.Errorf("register activity %q: %w", name, ErrDuplicateName)
	}
	r.activities[name] = fn
	return nil
}

func (r *Registry) FindWorkflow(name string) (WorkflowFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.workflows[name]
	return f, ok
}

func (r *Registry) FindActivity(name string) (ActivityFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.activities[name]
	return fn, ok
}

// Workflows returns the registered workflow names, sorted.
func (r *Registry) Workflows() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.workflows))
}

// Activities returns the registered activity names, sorted.
func (r *Registry) Activities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.activities))
}
