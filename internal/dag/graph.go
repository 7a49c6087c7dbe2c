// Package dag implements the DAG Scheduler: wave-based, dependency
// respecting concurrent dispatch of phases, with fail-fast and skip
// propagation. It is grounded on the Kahn's-algorithm ready-queue shape of
// divinesense's ai-agents orchestrator and agentium's
// internal/controller/dependencies.go topological sort, using
// golang.org/x/sync/semaphore to bound dispatch concurrency.
package dag

import (
	"fmt"

	"github.com/forgehq/forge/internal/phase"
)

// Graph is the validated dependency graph over a fixed phase set.
type Graph struct {
	phases  map[string]phase.Phase
	order   []string // declaration order, for stable wave dispatch
	forward map[string][]string
	indeg   map[string]int
}

// NewGraph validates and builds a Graph from phases in manifest declaration
// order. It rejects duplicate ids, dangling depends_on references, and
// cycles (detected via Kahn's algorithm failing to reach every node).
func NewGraph(phases []phase.Phase) (*Graph, error) {
	g := &Graph{
		phases:  make(map[string]phase.Phase, len(phases)),
		forward: make(map[string][]string),
		indeg:   make(map[string]int, len(phases)),
	}

	for _, p := range phases {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.phases[p.ID]; dup {
			return nil, fmt.Errorf("duplicate phase id %q", p.ID)
		}
		g.phases[p.ID] = p
		g.order = append(g.order, p.ID)
		g.indeg[p.ID] = 0
	}

	for _, p := range phases {
		for _, dep := range p.DependsOn {
			if _, ok := g.phases[dep]; !ok {
				return nil, fmt.Errorf("phase %s depends on unknown phase %s", p.ID, dep)
			}
			g.forward[dep] = append(g.forward[dep], p.ID)
			g.indeg[p.ID]++
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic runs Kahn's algorithm and fails if any node is unreachable,
// which can only happen in the presence of a cycle.
func (g *Graph) checkAcyclic() error {
	indeg := make(map[string]int, len(g.indeg))
	for id, d := range g.indeg {
		indeg[id] = d
	}

	var queue []string
	for _, id := range g.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := make(map[string]bool, len(g.phases))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited[id] = true
		for _, next := range g.forward[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(visited) != len(g.phases) {
		depender, dependency := g.findCyclePair(visited)
		return fmt.Errorf("cycle detected in phase dependency graph: phase %q depends on phase %q, closing a cycle", depender, dependency)
	}
	return nil
}

// findCyclePair walks dependency edges among the phases Kahn's algorithm
// left unvisited (the cyclic subgraph) until a phase repeats, then returns
// the closing edge as (depender, dependency) so the error names both
// offending phases. Every unvisited phase has at least one unvisited
// dependency — otherwise Kahn's algorithm would have visited it — so the
// walk is guaranteed to find one at each step and, over a finite set,
// eventually repeat.
func (g *Graph) findCyclePair(visited map[string]bool) (depender, dependency string) {
	var start string
	for _, id := range g.order {
		if !visited[id] {
			start = id
			break
		}
	}

	seen := map[string]bool{start: true}
	cur := start
	for {
		var next string
		for _, dep := range g.phases[cur].DependsOn {
			if !visited[dep] {
				next = dep
				break
			}
		}
		if seen[next] {
			return cur, next
		}
		seen[next] = true
		cur = next
	}
}

// Phase returns the phase registered under id.
func (g *Graph) Phase(id string) (phase.Phase, bool) {
	p, ok := g.phases[id]
	return p, ok
}

// Order returns phase ids in manifest declaration order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Downstream returns the ids directly depending on id.
func (g *Graph) Downstream(id string) []string {
	return g.forward[id]
}

// ReadySet returns the ids, in declaration order, whose status is Pending
// and whose every dependency has status Completed.
func (g *Graph) ReadySet(status map[string]phase.Status) []string {
	var ready []string
	for _, id := range g.order {
		if status[id] != phase.StatusPending {
			continue
		}
		allDepsDone := true
		p := g.phases[id]
		for _, dep := range p.DependsOn {
			if status[dep] != phase.StatusCompleted {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, id)
		}
	}
	return ready
}

// DownstreamClosure returns every id transitively reachable from id via
// forward (dependency) edges, not including id itself, used to cascade
// Skipped status on fail-fast and on non-fail-fast failure propagation.
func (g *Graph) DownstreamClosure(id string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, next := range g.forward[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			walk(next)
		}
	}
	walk(id)
	return out
}
