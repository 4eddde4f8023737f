package ids

import (
	"encoding/hex"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
)

// Natural numbers modules in discovery order and chunks in creation order.
type Natural struct{}

// Name implements Strategy.
func (Natural) Name() string { return "natural" }

// Assign implements Strategy.
func (Natural) Assign(ctx *Context) (*Assignment, error) {
	a := newAssignment("natural")
	for i, id := range discoveryOrder(ctx) {
		a.setModule(id, strconv.Itoa(i))
	}
	for i, c := range ctx.Chunks.Chunks() {
		a.setChunk(c.Key(), strconv.Itoa(i))
	}
	if err := a.validate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Named derives readable ids from module paths and chunk names. Modules
// that reduce to the same short name are disambiguated with a _N suffix in
// identity order; a suffixed candidate that itself matches another module's
// name, or two chunks carrying the same explicit name, is a hard collision.
type Named struct{}

// Name implements Strategy.
func (Named) Name() string { return "named" }

// Assign implements Strategy.
func (Named) Assign(ctx *Context) (*Assignment, error) {
	a := newAssignment("named")

	byBase := make(map[string][]graph.Identity)
	for _, m := range ctx.Graph.Modules() {
		base := moduleBaseName(m.Identity)
		byBase[base] = append(byBase[base], m.Identity)
	}
	bases := make([]string, 0, len(byBase))
	for base := range byBase {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	taken := make(map[string]graph.Identity)
	for _, base := range bases {
		members := byBase[base]
		if len(members) == 1 {
			if prev, dup := taken[base]; dup {
				return nil, werrors.NewIDCollision("named", base, string(prev), string(members[0]))
			}
			taken[base] = members[0]
			a.setModule(members[0], base)
			continue
		}
		for i, id := range members {
			candidate := base + "_" + strconv.Itoa(i)
			if prev, dup := taken[candidate]; dup {
				return nil, werrors.NewIDCollision("named", candidate, string(prev), string(id))
			}
			taken[candidate] = id
			a.setModule(id, candidate)
		}
	}

	chunkTaken := make(map[string]string)
	var anonymous []*chunk.Chunk
	for _, c := range ctx.Chunks.Chunks() {
		if c.Name == "" {
			anonymous = append(anonymous, c)
			continue
		}
		if prev, dup := chunkTaken[c.Name]; dup {
			return nil, werrors.NewIDCollision("named", c.Name, prev, c.Key())
		}
		chunkTaken[c.Name] = c.Key()
		a.setChunk(c.Key(), c.Name)
	}
	for _, c := range anonymous {
		base := "chunk"
		if roots := c.Roots; len(roots) > 0 {
			base = moduleBaseName(roots[0])
		}
		candidate := base
		for n := 0; ; n++ {
			if _, dup := chunkTaken[candidate]; !dup {
				break
			}
			candidate = base + "_" + strconv.Itoa(n)
		}
		chunkTaken[candidate] = c.Key()
		a.setChunk(c.Key(), candidate)
	}

	if err := a.validate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func moduleBaseName(id graph.Identity) string {
	s := string(id)
	// Loader chains prefix the resolved path with loader!loader! segments.
	if i := strings.LastIndex(s, "!"); i >= 0 {
		s = s[i+1:]
	}
	base := path.Base(s)
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return "module"
	}
	return base
}

// Deterministic hashes each identity and keeps a short hex prefix,
// expanding only colliding prefixes. The result depends on the identity set
// alone, never on discovery order.
type Deterministic struct{}

// Name implements Strategy.
func (Deterministic) Name() string { return "deterministic" }

// Assign implements Strategy.
func (Deterministic) Assign(ctx *Context) (*Assignment, error) {
	a := newAssignment("deterministic")

	moduleKeys := make([]string, 0, ctx.Graph.Len())
	for _, m := range ctx.Graph.Modules() {
		moduleKeys = append(moduleKeys, string(m.Identity))
	}
	moduleIDs, err := hashedIDs(moduleKeys)
	if err != nil {
		return nil, err
	}
	for key, v := range moduleIDs {
		a.setModule(graph.Identity(key), v)
	}

	chunkKeys := make([]string, 0, len(ctx.Chunks.Chunks()))
	for _, c := range ctx.Chunks.Chunks() {
		chunkKeys = append(chunkKeys, c.Key())
	}
	sort.Strings(chunkKeys)
	chunkIDs, err := hashedIDs(chunkKeys)
	if err != nil {
		return nil, err
	}
	for key, v := range chunkIDs {
		a.setChunk(key, v)
	}

	if err := a.validate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

const hashedIDLen = 8

// hashedIDs maps each key to a prefix of its content hash. Keys whose
// prefixes collide at the current length are extended together by two hex
// digits until they separate.
func hashedIDs(keys []string) (map[string]string, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	digests := make(map[string]string, len(sorted))
	for _, key := range sorted {
		sum := blake3.Sum256([]byte(key))
		digests[key] = hex.EncodeToString(sum[:])
	}

	out := make(map[string]string, len(sorted))
	var assign func(group []string, length int)
	assign = func(group []string, length int) {
		if length >= len(digests[group[0]]) {
			for _, key := range group {
				out[key] = digests[key]
			}
			return
		}
		byPrefix := make(map[string][]string)
		for _, key := range group {
			byPrefix[digests[key][:length]] = append(byPrefix[digests[key][:length]], key)
		}
		prefixes := make([]string, 0, len(byPrefix))
		for p := range byPrefix {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)
		for _, p := range prefixes {
			members := byPrefix[p]
			if len(members) == 1 {
				out[members[0]] = p
				continue
			}
			assign(members, length+2)
		}
	}

	for _, key := range sorted {
		if len(digests[key]) < hashedIDLen {
			return nil, werrors.Wrapf(werrors.ErrInternal, "digest shorter than id prefix for %s", key)
		}
	}
	assign(sorted, hashedIDLen)
	return out, nil
}

// Occurrence gives smaller ids to modules and chunks reachable from more
// entry points, tie-broken by natural order.
type Occurrence struct{}

// Name implements Strategy.
func (Occurrence) Name() string { return "occurrence" }

// Assign implements Strategy.
func (Occurrence) Assign(ctx *Context) (*Assignment, error) {
	a := newAssignment("occurrence")

	counts := make(map[graph.Identity]int)
	for _, entry := range ctx.Entries {
		visited := make(map[graph.Identity]bool)
		_ = ctx.Graph.WalkFrom([]graph.Identity{entry}, visited, graph.FollowStrong, func(m *graph.Module) error {
			counts[m.Identity]++
			return nil
		})
	}

	order := discoveryOrder(ctx)
	rank := make(map[graph.Identity]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	sorted := append([]graph.Identity(nil), order...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if counts[sorted[i]] != counts[sorted[j]] {
			return counts[sorted[i]] > counts[sorted[j]]
		}
		return rank[sorted[i]] < rank[sorted[j]]
	})
	for i, id := range sorted {
		a.setModule(id, strconv.Itoa(i))
	}

	chunkCounts := chunkEntryCounts(ctx.Chunks)
	chunks := append([]*chunk.Chunk(nil), ctx.Chunks.Chunks()...)
	chunkRank := make(map[string]int, len(chunks))
	for i, c := range chunks {
		chunkRank[c.Key()] = i
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunkCounts[chunks[i].Key()] != chunkCounts[chunks[j].Key()] {
			return chunkCounts[chunks[i].Key()] > chunkCounts[chunks[j].Key()]
		}
		return chunkRank[chunks[i].Key()] < chunkRank[chunks[j].Key()]
	})
	for i, c := range chunks {
		a.setChunk(c.Key(), strconv.Itoa(i))
	}

	if err := a.validate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// chunkEntryCounts counts, per chunk key, the entry groups from which the
// chunk's groups are reachable through the group hierarchy.
func chunkEntryCounts(cg *chunk.Graph) map[string]int {
	counts := make(map[string]int)
	for _, entry := range cg.EntryGroups() {
		seen := make(map[*chunk.Group]bool)
		seenChunk := make(map[string]bool)
		stack := []*chunk.Group{entry}
		for len(stack) > 0 {
			grp := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[grp] {
				continue
			}
			seen[grp] = true
			for _, c := range grp.Chunks {
				if !seenChunk[c.Key()] {
					seenChunk[c.Key()] = true
					counts[c.Key()]++
				}
			}
			children := grp.Children()
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
	return counts
}

// Size orders modules by how many chunks carry them, then by ascending
// source size, so the shortest ids land on the bytes repeated most often.
type Size struct{}

// Name implements Strategy.
func (Size) Name() string { return "size" }

// Assign implements Strategy.
func (Size) Assign(ctx *Context) (*Assignment, error) {
	a := newAssignment("size")

	order := discoveryOrder(ctx)
	rank := make(map[graph.Identity]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	sorted := append([]graph.Identity(nil), order...)
	sort.SliceStable(sorted, func(i, j int) bool {
		oi := len(ctx.Chunks.ChunksOf(sorted[i]))
		oj := len(ctx.Chunks.ChunksOf(sorted[j]))
		if oi != oj {
			return oi > oj
		}
		si, sj := moduleSize(ctx.Graph, sorted[i]), moduleSize(ctx.Graph, sorted[j])
		if si != sj {
			return si < sj
		}
		return rank[sorted[i]] < rank[sorted[j]]
	})
	for i, id := range sorted {
		a.setModule(id, strconv.Itoa(i))
	}

	chunks := append([]*chunk.Chunk(nil), ctx.Chunks.Chunks()...)
	chunkRank := make(map[string]int, len(chunks))
	for i, c := range chunks {
		chunkRank[c.Key()] = i
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Initial != chunks[j].Initial {
			return chunks[i].Initial
		}
		si, sj := chunkSize(ctx.Graph, chunks[i]), chunkSize(ctx.Graph, chunks[j])
		if si != sj {
			return si < sj
		}
		return chunkRank[chunks[i].Key()] < chunkRank[chunks[j].Key()]
	})
	for i, c := range chunks {
		a.setChunk(c.Key(), strconv.Itoa(i))
	}

	if err := a.validate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func moduleSize(g *graph.ModuleGraph, id graph.Identity) int {
	if m := g.Module(id); m != nil {
		return m.Size()
	}
	return 0
}

func chunkSize(g *graph.ModuleGraph, c *chunk.Chunk) int {
	total := 0
	for _, id := range c.Modules() {
		total += moduleSize(g, id)
	}
	return total
}
