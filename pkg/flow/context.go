package flow

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aretw0/espalier/pkg/domain"
)

// Context is the mutable state shared by one or more walks of a process
// instance: the instance id, the variable bag read by conditions and tasks,
// the stop signal and the execution trace.
//
// The interrupt signal is not part of the Context: it belongs to the branch
// being explored and is held by the Exchanger.
//
// Context is safe for concurrent use by parallel branches.
type Context struct {
	instanceID string

	mu   sync.RWMutex
	vars map[string]any

	stopped atomic.Bool
	trace   *Trace
}

// NewContext creates a context for the given process instance.
func NewContext(instanceID string) *Context {
	return &Context{
		instanceID: instanceID,
		vars:       make(map[string]any),
		trace:      newTrace(),
	}
}

// NewContextWith creates a context seeded with vars.
func NewContextWith(instanceID string, vars map[string]any) *Context {
	c := NewContext(instanceID)
	c.PutAll(vars)
	return c
}

// InstanceID returns the process instance the context belongs to.
func (c *Context) InstanceID() string {
	return c.instanceID
}

// Get returns a variable.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[key]
	return v, ok
}

// GetString returns a variable formatted as a string, or "" when absent.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Put sets a variable and returns the context for chaining.
func (c *Context) Put(key string, value any) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = value
	return c
}

// PutAll copies every entry of vars into the context.
func (c *Context) PutAll(vars map[string]any) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range vars {
		c.vars[k] = v
	}
	return c
}

// Remove deletes a variable.
func (c *Context) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vars, key)
}

// Vars returns a shallow copy of the variables.
func (c *Context) Vars() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Stop halts every branch of the current walk.
func (c *Context) Stop() {
	c.stopped.Store(true)
}

// Stopped reports whether the current walk was stopped.
func (c *Context) Stopped() bool {
	return c.stopped.Load()
}

// Trace returns the execution trace.
func (c *Context) Trace() *Trace {
	return c.trace
}

// reset clears the walk signals and the trace before a new top-level walk.
func (c *Context) reset() {
	c.stopped.Store(false)
	c.trace.reset()
}

// Trace records the last node visited in each graph.
type Trace struct {
	mu   sync.Mutex
	last map[string]*domain.Node
}

func newTrace() *Trace {
	return &Trace{last: make(map[string]*domain.Node)}
}

func (t *Trace) record(node *domain.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[node.GraphID()] = node
}

func (t *Trace) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]*domain.Node)
}

// Last returns the last node visited in the graph, or nil.
func (t *Trace) Last(graphID string) *domain.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[graphID]
}

// Ended reports whether the last node visited in the graph is an end node.
func (t *Trace) Ended(graphID string) bool {
	last := t.Last(graphID)
	return last != nil && last.Type == domain.NodeTypeEnd
}
