// Package split partitions a frozen module graph into chunks.
//
// One initial chunk is created per entry by walking synchronous edges.
// Every asynchronous edge found on the way opens (or reuses) a chunk group
// rooted at a fresh chunk, which is then walked the same way. A dedup pass
// hoists modules shared between chunks into their nearest common governing
// chunk where load order makes that safe, a merge pass collapses
// subset chunks under the configured thresholds, and empty chunks are
// pruned. The reachability invariant is re-checked at the end: a module
// reachable from an entry must remain in at least one chunk.
package split

import (
	"errors"
	"sort"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
)

// Entry is a declared entry point, already resolved to a module identity.
type Entry struct {
	Name   string
	Module graph.Identity
}

// Options tunes the merge/duplicate policy. The reachability invariant is
// enforced regardless of the values here.
type Options struct {
	// Dedupe hoists a module shared by several chunks into the nearest
	// common governing chunk when one exists. Without a common ancestor the
	// module stays duplicated.
	Dedupe bool
	// MinOverlap is the minimum |A|/|B| ratio for merging a subset chunk A
	// into its superset B. Range (0,1]; subset pairs below the ratio stay
	// split.
	MinOverlap float64
	// MaxChunkSize caps the total source bytes of a merge result. Zero
	// means unlimited.
	MaxChunkSize int
}

// DefaultOptions returns the policy used when the config does not override
// it: dedup across chunk groups, merge subsets that are at least half of
// their superset, no size cap.
func DefaultOptions() Options {
	return Options{
		Dedupe:     true,
		MinOverlap: 0.5,
	}
}

// Splitter partitions module graphs. A Splitter is stateless across calls.
type Splitter struct {
	opts Options
}

// New creates a splitter with the given policy.
func New(opts Options) *Splitter {
	return &Splitter{opts: opts}
}

// walkItem is a chunk awaiting its synchronous-closure walk.
type walkItem struct {
	chunk *chunk.Chunk
	group *chunk.Group
	roots []graph.Identity
}

// Split partitions g into a chunk graph. Structural errors (unreachable
// entries, policy violations) are collected and returned joined, alongside
// the graph built from the remaining entries.
func (s *Splitter) Split(g *graph.ModuleGraph, entries []Entry) (*chunk.Graph, error) {
	cg := chunk.NewGraph()
	var errs []error

	var queue []walkItem
	// Async boundaries keyed by chunk name or target identity, so an
	// equivalent boundary reuses its group instead of spawning a twin.
	boundaries := make(map[string]*chunk.Group)

	entryRoots := make([]graph.Identity, 0, len(entries))
	for _, e := range entries {
		if !g.Has(e.Module) {
			errs = append(errs, werrors.NewUnreachableEntry(e.Name, string(e.Module), nil))
			continue
		}
		grp := chunk.NewGroup(e.Name, true)
		c := chunk.NewChunk(e.Name, true, e.Module)
		cg.AddGroup(grp)
		cg.AddChunk(c)
		grp.AddChunk(c)
		queue = append(queue, walkItem{chunk: c, group: grp, roots: []graph.Identity{e.Module}})
		entryRoots = append(entryRoots, e.Module)
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		queue = append(queue, s.walkChunk(g, cg, item, boundaries)...)
	}

	if s.opts.Dedupe {
		s.dedupe(g, cg)
	}
	s.mergeSubsets(g, cg)
	s.prune(cg)

	if err := s.checkReachability(g, cg, entryRoots); err != nil {
		errs = append(errs, err)
	}
	return cg, errors.Join(errs...)
}

// walkChunk fills a chunk with the synchronous closure of its roots and
// returns walk items for chunk groups opened by asynchronous edges. The
// visited set is per chunk, so cyclic synchronous dependencies terminate
// and shared modules land in every chunk that reaches them.
func (s *Splitter) walkChunk(g *graph.ModuleGraph, cg *chunk.Graph, item walkItem, boundaries map[string]*chunk.Group) []walkItem {
	var spawned []walkItem
	visited := make(map[graph.Identity]bool)

	stack := make([]graph.Identity, 0, len(item.roots))
	for i := len(item.roots) - 1; i >= 0; i-- {
		stack = append(stack, item.roots[i])
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
		cg.AddModule(item.chunk, id)

		for i := len(m.Dependencies) - 1; i >= 0; i-- {
			dep := m.Dependencies[i]
			if dep.External != nil || dep.Target == "" {
				continue
			}
			switch dep.Kind {
			case graph.KindSync:
				if !visited[dep.Target] {
					stack = append(stack, dep.Target)
				}
			case graph.KindAsync:
				key := dep.ChunkName
				if key == "" {
					key = string(dep.Target)
				}
				grp, ok := boundaries[key]
				if !ok {
					grp = chunk.NewGroup(dep.ChunkName, false)
					c := chunk.NewChunk(dep.ChunkName, false, dep.Target)
					cg.AddGroup(grp)
					cg.AddChunk(c)
					grp.AddChunk(c)
					boundaries[key] = grp
					spawned = append(spawned, walkItem{chunk: c, group: grp, roots: []graph.Identity{dep.Target}})
				} else if c := contentChunk(grp); c != nil && !hasRoot(c, dep.Target) {
					// A named boundary can gather several targets; walk the
					// extra root into the existing chunk.
					c.Roots = append(c.Roots, dep.Target)
					spawned = append(spawned, walkItem{chunk: c, group: grp, roots: []graph.Identity{dep.Target}})
				}
				cg.Connect(item.group, grp)
			case graph.KindWeak:
				// Weak edges never pull a module into a chunk.
			}
		}
	}
	return spawned
}

// dedupe moves modules owned by several chunks into the nearest common
// governing chunk. A move is safe only when the target's group lies on
// every load path of every owner, so the module is guaranteed present
// before any previous owner executes. Owners without such a dominator
// stay duplicated.
func (s *Splitter) dedupe(g *graph.ModuleGraph, cg *chunk.Graph) {
	depths := groupDepths(cg)
	dom := governors(cg)

	for _, id := range cg.Modules() {
		// Copy the owner list: the moves below edit the reverse index
		// backing it.
		owners := append([]*chunk.Chunk(nil), cg.ChunksOf(id)...)
		if len(owners) < 2 {
			continue
		}
		target := commonGoverningChunk(owners, dom, depths)
		if target == nil {
			continue
		}
		if s.opts.MaxChunkSize > 0 && !ownersContain(owners, target) {
			if chunkSize(g, target)+moduleSize(g, id) > s.opts.MaxChunkSize {
				continue
			}
		}
		cg.AddModule(target, id)
		for _, o := range owners {
			if o != target {
				cg.RemoveModule(o, id)
			}
		}
	}
}

// ownersContain reports whether target is among owners.
func ownersContain(owners []*chunk.Chunk, target *chunk.Chunk) bool {
	for _, o := range owners {
		if o == target {
			return true
		}
	}
	return false
}

// groupDepths computes each group's distance from the entry groups by BFS
// over child relations. Cyclic async references keep their first-seen
// depth, so the computation terminates on any shape.
func groupDepths(cg *chunk.Graph) map[*chunk.Group]int {
	depths := make(map[*chunk.Group]int)
	var queue []*chunk.Group
	for _, gr := range cg.Groups() {
		if gr.Entry {
			depths[gr] = 0
			queue = append(queue, gr)
		}
	}
	for len(queue) > 0 {
		gr := queue[0]
		queue = queue[1:]
		for _, child := range gr.Children() {
			if _, ok := depths[child]; ok {
				continue
			}
			depths[child] = depths[gr] + 1
			queue = append(queue, child)
		}
	}
	return depths
}

// governors computes each group's dominator set: the groups present on
// every load path from an entry to it, itself included. Sets start full
// and shrink to a fixpoint, which also converges on cyclic async
// references.
func governors(cg *chunk.Graph) map[*chunk.Group]map[*chunk.Group]bool {
	groups := cg.Groups()
	dom := make(map[*chunk.Group]map[*chunk.Group]bool, len(groups))

	for _, gr := range groups {
		if gr.Entry || len(gr.Parents()) == 0 {
			dom[gr] = map[*chunk.Group]bool{gr: true}
			continue
		}
		full := make(map[*chunk.Group]bool, len(groups))
		for _, g := range groups {
			full[g] = true
		}
		dom[gr] = full
	}

	changed := true
	for changed {
		changed = false
		for _, gr := range groups {
			if gr.Entry || len(gr.Parents()) == 0 {
				continue
			}
			next := make(map[*chunk.Group]bool)
			for i, p := range gr.Parents() {
				pd := dom[p]
				if i == 0 {
					for g := range pd {
						next[g] = true
					}
					continue
				}
				for g := range next {
					if !pd[g] {
						delete(next, g)
					}
				}
			}
			next[gr] = true
			if !sameGroupSet(next, dom[gr]) {
				dom[gr] = next
				changed = true
			}
		}
	}
	return dom
}

func sameGroupSet(a, b map[*chunk.Group]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for g := range a {
		if !b[g] {
			return false
		}
	}
	return true
}

// commonGoverningChunk finds the deepest group dominating every owner and
// returns its content chunk. A chunk in several groups is governed only by
// groups dominating all of them. Returns nil when no shared dominator
// exists, in which case the module stays duplicated.
func commonGoverningChunk(owners []*chunk.Chunk, dom map[*chunk.Group]map[*chunk.Group]bool, depths map[*chunk.Group]int) *chunk.Chunk {
	var common map[*chunk.Group]bool
	for _, o := range owners {
		for i, gr := range o.Groups() {
			gd := dom[gr]
			if common == nil && i == 0 {
				common = make(map[*chunk.Group]bool, len(gd))
				for g := range gd {
					common[g] = true
				}
				continue
			}
			for g := range common {
				if !gd[g] {
					delete(common, g)
				}
			}
		}
		if len(common) == 0 {
			return nil
		}
	}

	var best *chunk.Group
	for gr := range common {
		if best == nil || depths[gr] > depths[best] {
			best = gr
		} else if depths[gr] == depths[best] && groupKey(gr) < groupKey(best) {
			best = gr
		}
	}
	if best == nil {
		return nil
	}
	return contentChunk(best)
}

// groupKey gives groups a stable comparison key for deterministic
// tie-breaks between equally deep governors.
func groupKey(gr *chunk.Group) string {
	if gr.Name != "" {
		return gr.Name
	}
	if len(gr.Chunks) > 0 {
		return gr.Chunks[0].Key()
	}
	return ""
}

// mergeSubsets collapses an async chunk whose module set is contained in
// another async chunk, when the overlap ratio meets MinOverlap and the
// merge result stays under MaxChunkSize. The subsumed chunk's groups are
// pointed at the superset so every boundary still loads all its modules.
func (s *Splitter) mergeSubsets(g *graph.ModuleGraph, cg *chunk.Graph) {
	// Snapshot: merging edits the chunk list.
	chunks := append([]*chunk.Chunk(nil), cg.Chunks()...)
	removed := make(map[*chunk.Chunk]bool)

	for _, small := range chunks {
		if removed[small] || small.Initial || small.Runtime || small.Len() == 0 {
			continue
		}
		for _, big := range chunks {
			if big == small || removed[big] || big.Initial || big.Runtime {
				continue
			}
			if small.Len() > big.Len() {
				continue
			}
			if !containsAll(big, small) {
				continue
			}
			ratio := float64(small.Len()) / float64(big.Len())
			if ratio < s.opts.MinOverlap {
				continue
			}
			if s.opts.MaxChunkSize > 0 && chunkSize(g, big) > s.opts.MaxChunkSize {
				continue
			}
			for _, gr := range small.Groups() {
				gr.AddChunk(big)
			}
			for _, id := range small.Modules() {
				cg.RemoveModule(small, id)
			}
			cg.RemoveChunk(small)
			removed[small] = true
			break
		}
	}
}

// contentChunk returns the last non-runtime chunk of a group.
func contentChunk(gr *chunk.Group) *chunk.Chunk {
	for i := len(gr.Chunks) - 1; i >= 0; i-- {
		if !gr.Chunks[i].Runtime {
			return gr.Chunks[i]
		}
	}
	return nil
}

// hasRoot reports whether id is already a root of the chunk.
func hasRoot(c *chunk.Chunk, id graph.Identity) bool {
	for _, r := range c.Roots {
		if r == id {
			return true
		}
	}
	return false
}

// containsAll reports whether big contains every module of small.
func containsAll(big, small *chunk.Chunk) bool {
	for _, id := range small.Modules() {
		if !big.Has(id) {
			return false
		}
	}
	return true
}

// prune removes chunks left without modules and groups left without
// chunks.
func (s *Splitter) prune(cg *chunk.Graph) {
	for _, c := range append([]*chunk.Chunk(nil), cg.Chunks()...) {
		if c.Len() == 0 && !c.Runtime {
			cg.RemoveChunk(c)
		}
	}
	for _, gr := range append([]*chunk.Group(nil), cg.Groups()...) {
		if len(gr.Chunks) == 0 {
			cg.RemoveGroup(gr)
		}
	}
}

// checkReachability verifies that every module reachable from the entry
// roots over strong edges still lives in at least one chunk. A miss is a
// policy violation, never silently accepted.
func (s *Splitter) checkReachability(g *graph.ModuleGraph, cg *chunk.Graph, roots []graph.Identity) error {
	var errs []error
	err := g.WalkFrom(roots, make(map[graph.Identity]bool), graph.FollowStrong, func(m *graph.Module) error {
		if len(cg.ChunksOf(m.Identity)) == 0 {
			errs = append(errs, werrors.NewSplitPolicy(string(m.Identity), "", "module reachable from an entry is in no chunk"))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// chunkSize sums the source sizes of a chunk's modules.
func chunkSize(g *graph.ModuleGraph, c *chunk.Chunk) int {
	total := 0
	for _, id := range c.Modules() {
		total += moduleSize(g, id)
	}
	return total
}

// moduleSize returns a module's source size, zero for unknown identities.
func moduleSize(g *graph.ModuleGraph, id graph.Identity) int {
	if m := g.Module(id); m != nil {
		return m.Size()
	}
	return 0
}

// SortedChunkKeys returns the keys of all chunks in a stable order, useful
// to downstream consumers that need a deterministic chunk enumeration.
func SortedChunkKeys(cg *chunk.Graph) []string {
	keys := make([]string, 0, len(cg.Chunks()))
	for _, c := range cg.Chunks() {
		keys = append(keys, c.Key())
	}
	sort.Strings(keys)
	return keys
}
