// Package ids assigns emitted identifiers to modules and chunks.
//
// One strategy is active per build. Every strategy produces a total,
// injective mapping over the live modules and chunks, and the deterministic
// strategies are additionally independent of discovery order. Ids are
// strings throughout: numeric strategies emit decimal digits, which is also
// how a script host keys its module table.
package ids

import (
	"sort"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
)

// Context carries the inputs a strategy may consult.
type Context struct {
	Graph  *graph.ModuleGraph
	Chunks *chunk.Graph
	// Entries are the entry modules in configuration order; they anchor
	// discovery order and occurrence counting.
	Entries []graph.Identity
}

// Assignment is the id table produced by a strategy: module identity -> id
// and chunk key -> id. Within each scope the mapping is a bijection.
type Assignment struct {
	Strategy string

	moduleIDs map[graph.Identity]string
	chunkIDs  map[string]string
}

func newAssignment(strategy string) *Assignment {
	return &Assignment{
		Strategy:  strategy,
		moduleIDs: make(map[graph.Identity]string),
		chunkIDs:  make(map[string]string),
	}
}

// ModuleID returns the id assigned to a module.
func (a *Assignment) ModuleID(id graph.Identity) (string, bool) {
	v, ok := a.moduleIDs[id]
	return v, ok
}

// ChunkID returns the id assigned to a chunk key.
func (a *Assignment) ChunkID(key string) (string, bool) {
	v, ok := a.chunkIDs[key]
	return v, ok
}

// ModuleIdentities returns all mapped module identities, sorted.
func (a *Assignment) ModuleIdentities() []graph.Identity {
	out := make([]graph.Identity, 0, len(a.moduleIDs))
	for id := range a.moduleIDs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChunkKeys returns all mapped chunk keys, sorted.
func (a *Assignment) ChunkKeys() []string {
	out := make([]string, 0, len(a.chunkIDs))
	for key := range a.chunkIDs {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (a *Assignment) setModule(id graph.Identity, v string) {
	a.moduleIDs[id] = v
}

func (a *Assignment) setChunk(key, v string) {
	a.chunkIDs[key] = v
}

// validate checks totality over the live entities and injectivity within
// each scope. Injectivity failures surface as IDCollisionError.
func (a *Assignment) validate(ctx *Context) error {
	seen := make(map[string]graph.Identity, len(a.moduleIDs))
	for _, m := range ctx.Graph.Modules() {
		v, ok := a.moduleIDs[m.Identity]
		if !ok {
			return werrors.Wrapf(werrors.ErrInternal, "strategy %s left module %s without id", a.Strategy, m.Identity)
		}
		if prev, dup := seen[v]; dup {
			return werrors.NewIDCollision(a.Strategy, v, string(prev), string(m.Identity))
		}
		seen[v] = m.Identity
	}

	seenChunks := make(map[string]string, len(a.chunkIDs))
	for _, c := range ctx.Chunks.Chunks() {
		key := c.Key()
		v, ok := a.chunkIDs[key]
		if !ok {
			return werrors.Wrapf(werrors.ErrInternal, "strategy %s left chunk %s without id", a.Strategy, key)
		}
		if prev, dup := seenChunks[v]; dup {
			return werrors.NewIDCollision(a.Strategy, v, prev, key)
		}
		seenChunks[v] = key
	}
	return nil
}

// Strategy assigns ids for one compilation.
type Strategy interface {
	Name() string
	Assign(ctx *Context) (*Assignment, error)
}

// ByName resolves a strategy from its configuration name.
func ByName(name string) (Strategy, error) {
	switch name {
	case "natural", "":
		return Natural{}, nil
	case "named":
		return Named{}, nil
	case "deterministic":
		return Deterministic{}, nil
	case "occurrence":
		return Occurrence{}, nil
	case "size":
		return Size{}, nil
	default:
		return nil, werrors.NewValidation("ids", "unknown id strategy "+name)
	}
}

// discoveryOrder walks the graph from the entries over strong edges and
// returns modules in deterministic pre-order. Live modules missed by the
// walk (none in a consistent compilation) are appended sorted, keeping the
// mapping total.
func discoveryOrder(ctx *Context) []graph.Identity {
	var order []graph.Identity
	visited := make(map[graph.Identity]bool)
	_ = ctx.Graph.WalkFrom(ctx.Entries, visited, graph.FollowStrong, func(m *graph.Module) error {
		order = append(order, m.Identity)
		return nil
	})
	for _, m := range ctx.Graph.Modules() {
		if !visited[m.Identity] {
			order = append(order, m.Identity)
		}
	}
	return order
}
