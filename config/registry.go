package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/genopipe/pipeline"
)

// WorkflowFunc runs a workflow with positional arguments from a definition.
// It reports whether the run passed.
type WorkflowFunc func(ctx context.Context, opts RunOptions, args []interface{}) (bool, error)

// RunOptions are passed to a WorkflowFunc.
type RunOptions struct {
	// RunID is used for the run when set.
	RunID    string
	Observer pipeline.Observer
	// PollInterval comes from the definition; zero means the dispatcher default.
	PollInterval Duration
}

// Registry maps workflow names to workflows. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]WorkflowFunc
}

// NewRegistry returns an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]WorkflowFunc)}
}

// Register adds a workflow under the given name. Overwrites any existing registration.
func (r *Registry) Register(name string, fn WorkflowFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workflows == nil {
		r.workflows = make(map[string]WorkflowFunc)
	}
	r.workflows[name] = fn
}

// Get returns the workflow for name, or nil and false if not found.
func (r *Registry) Get(name string) (WorkflowFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.workflows[name]
	return fn, ok
}

// MustGet returns the workflow for name, or panics if not found.
func (r *Registry) MustGet(name string) WorkflowFunc {
	fn, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("config: workflow %q not registered", name))
	}
	return fn
}

// Names returns all registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for n := range r.workflows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run runs the workflow named by def under def.Timeout. The definition's
// poll interval is passed on in opts.
func (r *Registry) Run(ctx context.Context, def *Definition, opts RunOptions) (bool, error) {
	if def == nil {
		return false, errors.New("definition is nil")
	}
	fn, ok := r.Get(def.Workflow)
	if !ok {
		return false, errors.WithHintf(errors.Newf("workflow %q not registered", def.Workflow),
			"known workflows: %v", r.Names())
	}
	if t := def.Timeout.Duration(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = def.PollInterval
	}
	return fn(ctx, opts, def.Arguments)
}

// ObserverRegistry maps observer names to observers. Safe for concurrent use.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers map[string]pipeline.Observer
}

// NewObserverRegistry returns an empty observer registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{observers: make(map[string]pipeline.Observer)}
}

// Register adds an observer under the given name.
func (r *ObserverRegistry) Register(name string, obs pipeline.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observers == nil {
		r.observers = make(map[string]pipeline.Observer)
	}
	r.observers[name] = obs
}

// Get returns the observer for name.
func (r *ObserverRegistry) Get(name string) (pipeline.Observer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obs, ok := r.observers[name]
	return obs, ok
}

// BuildObserver returns a pipeline.Observer for the definition's Observers list
// by looking up each name in reg and combining them with pipeline.MultiObserver.
// If def.Observers is empty or reg is nil, returns (nil, nil); the caller can
// pass their own observer. If any observer name is not registered, returns an error.
func BuildObserver(def *Definition, reg *ObserverRegistry) (pipeline.Observer, error) {
	if def == nil || len(def.Observers) == 0 || reg == nil {
		return nil, nil
	}
	list := make([]pipeline.Observer, 0, len(def.Observers))
	for i, name := range def.Observers {
		obs, ok := reg.Get(name)
		if !ok {
			return nil, errors.Newf("observer %d: %q not in registry", i, name)
		}
		list = append(list, obs)
	}
	return pipeline.MultiObserver(list...), nil
}
