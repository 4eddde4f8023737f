// Package chunk models the output side of a compilation: chunks, chunk
// groups, and the bidirectional module membership index. The splitter
// populates these structures; later phases only read them.
package chunk

import (
	"sort"
	"strings"

	"github.com/ThatTomPerson/webpack/core/graph"
)

// Chunk is an unordered set of modules emitted as one asset. A module may
// belong to several chunks when the split policy duplicates it; all owners
// share the same module object, so the compiled payload is identical.
type Chunk struct {
	// Name is the entry name for initial chunks or the chunk name requested
	// at an async boundary. Empty for anonymous async chunks.
	Name string
	// Initial marks chunks loaded eagerly by an entry point rather than on
	// demand.
	Initial bool
	// Runtime marks the chunk carrying the runtime modules when the build
	// extracts them into their own chunk.
	Runtime bool
	// Roots are the modules that seeded the chunk: the entry module for
	// initial chunks, the async boundary targets otherwise. Root order is
	// the discovery order and is deterministic.
	Roots []graph.Identity

	modules map[graph.Identity]bool
	groups  []*Group
}

// NewChunk creates an empty chunk.
func NewChunk(name string, initial bool, roots ...graph.Identity) *Chunk {
	return &Chunk{
		Name:    name,
		Initial: initial,
		Roots:   roots,
		modules: make(map[graph.Identity]bool),
	}
}

// Key returns the stable identity of the chunk used by id strategies: the
// chunk name when present, otherwise the sorted root identities joined with
// "|".
func (c *Chunk) Key() string {
	if c.Name != "" {
		return c.Name
	}
	roots := make([]string, len(c.Roots))
	for i, r := range c.Roots {
		roots[i] = string(r)
	}
	sort.Strings(roots)
	return strings.Join(roots, "|")
}

// Has reports whether the chunk contains the module.
func (c *Chunk) Has(id graph.Identity) bool {
	return c.modules[id]
}

// Len returns the number of modules in the chunk.
func (c *Chunk) Len() int {
	return len(c.modules)
}

// Modules returns the contained module identities sorted for stable output.
func (c *Chunk) Modules() []graph.Identity {
	out := make([]graph.Identity, 0, len(c.modules))
	for id := range c.modules {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Groups returns the chunk groups this chunk belongs to, in attach order.
func (c *Chunk) Groups() []*Group {
	return c.groups
}

// Group is an ordered list of chunks loaded together; ancestors first, so
// shared parents are available before the chunks that need them.
type Group struct {
	// Name is the entry name for entry groups or the chunk name for named
	// async groups. Empty for anonymous groups.
	Name string
	// Entry marks groups created for configured entry points.
	Entry bool
	// Chunks in loading order.
	Chunks []*Chunk

	parents  []*Group
	children []*Group
}

// NewGroup creates an empty group.
func NewGroup(name string, entry bool) *Group {
	return &Group{Name: name, Entry: entry}
}

// AddChunk appends a chunk to the group's loading order and records the
// back-reference on the chunk. Adding the same chunk twice is a no-op.
func (gr *Group) AddChunk(c *Chunk) {
	for _, existing := range gr.Chunks {
		if existing == c {
			return
		}
	}
	gr.Chunks = append(gr.Chunks, c)
	c.groups = append(c.groups, gr)
}

// PrependChunk puts a chunk at the front of the group's loading order. The
// runtime assembler uses this to make an extracted runtime chunk load before
// the chunks that depend on it.
func (gr *Group) PrependChunk(c *Chunk) {
	for _, existing := range gr.Chunks {
		if existing == c {
			return
		}
	}
	gr.Chunks = append([]*Chunk{c}, gr.Chunks...)
	c.groups = append(c.groups, gr)
}

// Parents returns the groups that load this group.
func (gr *Group) Parents() []*Group {
	return gr.parents
}

// Children returns the groups this group loads on demand.
func (gr *Group) Children() []*Group {
	return gr.children
}

// Graph indexes all chunks and groups of a compilation and maintains the
// module -> chunk side of the membership relation.
type Graph struct {
	groups       []*Group
	chunks       []*Chunk
	moduleChunks map[graph.Identity][]*Chunk
}

// NewGraph creates an empty chunk graph.
func NewGraph() *Graph {
	return &Graph{
		moduleChunks: make(map[graph.Identity][]*Chunk),
	}
}

// AddGroup registers a group. Group registration order is the deterministic
// group order used by downstream phases.
func (g *Graph) AddGroup(gr *Group) {
	g.groups = append(g.groups, gr)
}

// AddChunk registers a chunk. Chunk registration order is the deterministic
// chunk order used for natural chunk ids.
func (g *Graph) AddChunk(c *Chunk) {
	g.chunks = append(g.chunks, c)
}

// Connect records that parent loads child, wiring both directions. Repeat
// connections are no-ops.
func (g *Graph) Connect(parent, child *Group) {
	for _, existing := range parent.children {
		if existing == child {
			return
		}
	}
	parent.children = append(parent.children, child)
	child.parents = append(child.parents, parent)
}

// AddModule places a module into a chunk and updates the reverse index.
// Placing a module twice in the same chunk is a no-op.
func (g *Graph) AddModule(c *Chunk, id graph.Identity) {
	if c.modules[id] {
		return
	}
	c.modules[id] = true
	g.moduleChunks[id] = append(g.moduleChunks[id], c)
}

// RemoveModule takes a module out of a chunk, keeping the reverse index
// consistent.
func (g *Graph) RemoveModule(c *Chunk, id graph.Identity) {
	if !c.modules[id] {
		return
	}
	delete(c.modules, id)
	owners := g.moduleChunks[id]
	for i, owner := range owners {
		if owner == c {
			g.moduleChunks[id] = append(owners[:i], owners[i+1:]...)
			break
		}
	}
	if len(g.moduleChunks[id]) == 0 {
		delete(g.moduleChunks, id)
	}
}

// RemoveChunk deletes a chunk from the graph, from every group, and from
// the reverse index. The caller is responsible for having moved or
// re-homed the chunk's modules first.
func (g *Graph) RemoveChunk(c *Chunk) {
	for i, existing := range g.chunks {
		if existing == c {
			g.chunks = append(g.chunks[:i], g.chunks[i+1:]...)
			break
		}
	}
	for _, gr := range c.groups {
		for i, existing := range gr.Chunks {
			if existing == c {
				gr.Chunks = append(gr.Chunks[:i], gr.Chunks[i+1:]...)
				break
			}
		}
	}
	for _, id := range c.Modules() {
		g.RemoveModule(c, id)
	}
	c.groups = nil
}

// RemoveGroup deletes a group from the graph and detaches it from its
// parents and children. Chunks still in the group keep their other group
// memberships.
func (g *Graph) RemoveGroup(gr *Group) {
	for i, existing := range g.groups {
		if existing == gr {
			g.groups = append(g.groups[:i], g.groups[i+1:]...)
			break
		}
	}
	for _, parent := range gr.parents {
		for i, child := range parent.children {
			if child == gr {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
	}
	for _, child := range gr.children {
		for i, parent := range child.parents {
			if parent == gr {
				child.parents = append(child.parents[:i], child.parents[i+1:]...)
				break
			}
		}
	}
	for _, c := range gr.Chunks {
		for i, existing := range c.groups {
			if existing == gr {
				c.groups = append(c.groups[:i], c.groups[i+1:]...)
				break
			}
		}
	}
	gr.parents = nil
	gr.children = nil
	gr.Chunks = nil
}

// Chunks returns all chunks in registration order.
func (g *Graph) Chunks() []*Chunk {
	return g.chunks
}

// Groups returns all groups in registration order.
func (g *Graph) Groups() []*Group {
	return g.groups
}

// EntryGroups returns the groups created for entry points, in registration
// order.
func (g *Graph) EntryGroups() []*Group {
	var out []*Group
	for _, gr := range g.groups {
		if gr.Entry {
			out = append(out, gr)
		}
	}
	return out
}

// ChunksOf returns the chunks containing a module, in placement order. The
// result is nil for unplaced modules.
func (g *Graph) ChunksOf(id graph.Identity) []*Chunk {
	return g.moduleChunks[id]
}

// ModuleCount returns the number of distinct placed modules.
func (g *Graph) ModuleCount() int {
	return len(g.moduleChunks)
}

// Modules returns every placed module identity, sorted.
func (g *Graph) Modules() []graph.Identity {
	out := make([]graph.Identity, 0, len(g.moduleChunks))
	for id := range g.moduleChunks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
