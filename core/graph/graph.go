package graph

import (
	"sort"
	"sync"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// ModuleGraph holds all modules of a compilation keyed by identity. Adds may
// happen concurrently during analysis; Freeze ends the mutable phase before
// the splitter runs.
type ModuleGraph struct {
	mu      sync.RWMutex
	modules map[Identity]*Module
	frozen  bool
}

// NewModuleGraph creates an empty graph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		modules: make(map[Identity]*Module),
	}
}

// Add registers a module. Adding the identical module twice is a no-op;
// adding a different module under an existing identity returns a
// DuplicateModuleError.
func (g *ModuleGraph) Add(m *Module) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return werrors.Wrap(werrors.ErrInvalidInput, "add on frozen graph")
	}
	if existing, ok := g.modules[m.Identity]; ok {
		if existing.ContentHash == m.ContentHash {
			return nil
		}
		return werrors.NewDuplicateModule(string(m.Identity), existing.ContentHash, m.ContentHash)
	}
	g.modules[m.Identity] = m
	return nil
}

// AddDependency appends an outgoing edge to an already-registered module.
// Edge order is preserved; it drives traversal order.
func (g *ModuleGraph) AddDependency(from Identity, dep Dependency) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return werrors.Wrap(werrors.ErrInvalidInput, "add dependency on frozen graph")
	}
	m, ok := g.modules[from]
	if !ok {
		return werrors.Wrapf(werrors.ErrNotFound, "module %s", from)
	}
	m.Dependencies = append(m.Dependencies, dep)
	return nil
}

// Freeze ends the mutable phase. Subsequent Add and AddDependency calls
// return an error. Freeze is idempotent.
func (g *ModuleGraph) Freeze() {
	g.mu.Lock()
	g.frozen = true
	g.mu.Unlock()
}

// Frozen reports whether the graph has been frozen.
func (g *ModuleGraph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Module returns the module for an identity, or nil if absent.
func (g *ModuleGraph) Module(id Identity) *Module {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.modules[id]
}

// Has reports whether a module with the identity exists.
func (g *ModuleGraph) Has(id Identity) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.modules[id]
	return ok
}

// Len returns the number of registered modules.
func (g *ModuleGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}

// Dependencies returns the outgoing edges of a module in insertion order.
// The result is nil for unknown modules.
func (g *ModuleGraph) Dependencies(id Identity) []Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	if !ok {
		return nil
	}
	return m.Dependencies
}

// Exports returns the export surface of a module. The second result is
// false for unknown modules.
func (g *ModuleGraph) Exports(id Identity) (Exports, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	if !ok {
		return Exports{}, false
	}
	return m.Exports, true
}

// Modules returns all modules sorted by identity.
func (g *ModuleGraph) Modules() []*Module {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Module, 0, len(g.modules))
	for _, m := range g.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// VisitFunc is called once per module during a walk. Returning an error
// stops the walk and propagates the error.
type VisitFunc func(*Module) error

// FollowFunc decides whether a walk crosses an edge.
type FollowFunc func(Dependency) bool

// FollowStrong follows synchronous and asynchronous edges. Weak edges do
// not establish reachability.
func FollowStrong(d Dependency) bool {
	return d.Kind == KindSync || d.Kind == KindAsync
}

// FollowSync follows only synchronous edges.
func FollowSync(d Dependency) bool {
	return d.Kind == KindSync
}

// Walk visits every module reachable from roots over strong edges exactly
// once, in deterministic pre-order: roots in the given order, then each
// module's dependencies in insertion order. External and unresolved edges
// are skipped. Unknown roots are ignored.
func (g *ModuleGraph) Walk(roots []Identity, visit VisitFunc) error {
	return g.WalkFrom(roots, make(map[Identity]bool), FollowStrong, visit)
}

// WalkFrom is Walk with an explicit edge filter and a caller-owned visited
// set, so a traversal can resume from new roots without revisiting.
// The walk is iterative; cycles terminate via the visited set. The lock is
// not held across visit calls, so visitors may query the graph.
func (g *ModuleGraph) WalkFrom(roots []Identity, visited map[Identity]bool, follow FollowFunc, visit VisitFunc) error {
	stack := make([]Identity, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[id] {
			continue
		}
		m := g.Module(id)
		if m == nil {
			continue
		}
		visited[id] = true

		if err := visit(m); err != nil {
			return err
		}

		// Push in reverse so the first dependency is visited first.
		for i := len(m.Dependencies) - 1; i >= 0; i-- {
			dep := m.Dependencies[i]
			if dep.External != nil || dep.Target == "" {
				continue
			}
			if !follow(dep) {
				continue
			}
			if !visited[dep.Target] {
				stack = append(stack, dep.Target)
			}
		}
	}
	return nil
}
