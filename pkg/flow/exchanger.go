package flow

import (
	"context"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Exchanger carries one branch of a walk: the engine, the installed driver,
// the graph being walked, the shared Context and the branch-local interrupt
// signal. Drivers receive it on every callback.
type Exchanger struct {
	engine  *Engine
	driver  Driver
	graph   *domain.Graph
	fc      *Context
	scratch *scratch

	interrupted bool
}

// Engine returns the engine running the walk.
func (ex *Exchanger) Engine() *Engine { return ex.engine }

// Driver returns the driver installed for the walk.
func (ex *Exchanger) Driver() Driver { return ex.driver }

// Graph returns the graph being walked.
func (ex *Exchanger) Graph() *domain.Graph { return ex.graph }

// Context returns the shared flow context.
func (ex *Exchanger) Context() *Context { return ex.fc }

// Stop halts the whole walk.
func (ex *Exchanger) Stop() { ex.fc.Stop() }

// Stopped reports whether the walk was stopped.
func (ex *Exchanger) Stopped() bool { return ex.fc.Stopped() }

// Interrupt ends the branch currently being explored. Sibling branches
// continue.
func (ex *Exchanger) Interrupt() { ex.interrupted = true }

// Interrupted reports whether the current branch was interrupted.
func (ex *Exchanger) Interrupted() bool { return ex.interrupted }

// EvalGraph walks another graph from its start node inside the current walk,
// sharing the context, the driver and the stop signal. A stop propagates to
// the caller. When the sub-graph walk ends without reaching one of its end
// nodes, the calling branch is interrupted.
func (ex *Exchanger) EvalGraph(ctx context.Context, g *domain.Graph) error {
	sub := &Exchanger{
		engine:  ex.engine,
		driver:  ex.driver,
		graph:   g,
		fc:      ex.fc,
		scratch: ex.scratch,
	}
	if err := ex.engine.run(ctx, sub, g.Start()); err != nil {
		return err
	}
	if !ex.Stopped() && !ex.fc.Trace().Ended(g.ID) {
		ex.Interrupt()
	}
	return nil
}

// fork returns a copy for a concurrently explored branch.
func (ex *Exchanger) fork() *Exchanger {
	return &Exchanger{
		engine:  ex.engine,
		driver:  ex.driver,
		graph:   ex.graph,
		fc:      ex.fc,
		scratch: ex.scratch,
	}
}

// consumeInterrupt reports whether the branch was interrupted and clears the
// signal so the next branch explored by this exchanger starts clean.
func (ex *Exchanger) consumeInterrupt() bool {
	if !ex.interrupted {
		return false
	}
	ex.interrupted = false
	return true
}

// halted reports whether the current branch must not continue.
func (ex *Exchanger) halted() bool {
	if ex.Stopped() {
		return true
	}
	return ex.consumeInterrupt()
}

// scratch holds the join bookkeeping of one walk.
type scratch struct {
	mu        sync.Mutex
	counters  map[string]int
	inclusive map[string][]int
	loops     map[string][]*iterator
}

func newScratch() *scratch {
	return &scratch{
		counters:  make(map[string]int),
		inclusive: make(map[string][]int),
		loops:     make(map[string][]*iterator),
	}
}

func (s *scratch) incr(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key]
}

func (s *scratch) resetCount(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
}

func (s *scratch) pushInclusive(graphID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inclusive[graphID] = append(s.inclusive[graphID], n)
}

// joinInclusive counts an arrival at an inclusive join and reports whether
// every branch opened by the matching split has arrived.
func (s *scratch) joinInclusive(graphID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.inclusive[graphID]
	if len(stack) == 0 {
		return true
	}
	s.counters[key]++
	if stack[len(stack)-1] > s.counters[key] {
		return false
	}
	s.inclusive[graphID] = stack[:len(stack)-1]
	delete(s.counters, key)
	return true
}

func (s *scratch) pushLoop(graphID string, it *iterator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops[graphID] = append(s.loops[graphID], it)
}

// closeLoop reports whether the innermost loop of the graph is drained, and
// pops it when it is.
func (s *scratch) closeLoop(graphID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.loops[graphID]
	if len(stack) == 0 {
		return true
	}
	if stack[len(stack)-1].hasNext() {
		return false
	}
	s.loops[graphID] = stack[:len(stack)-1]
	return true
}
