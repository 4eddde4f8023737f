package emit

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/ThatTomPerson/webpack/core/chunk"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
)

// hashLen truncates the hex digests used in filenames. Full blake3 digests
// are overkill for cache busting and make asset names unwieldy.
const hashLen = 20

// Hashes carries the digests filename templates draw from. They are
// computed from module content hashes and id assignments, before any chunk
// is rendered, so filenames can feed back into the runtime's filename
// table without a circular dependency on rendered output.
type Hashes struct {
	// Build digests the whole compilation.
	Build string
	// Chunk digests each chunk's module set, keyed by chunk key.
	Chunk map[string]string
	// Content digests each chunk's module content and id, keyed by chunk
	// key. Unlike Chunk it shifts when ids are reassigned, matching what
	// actually changes the emitted bytes.
	Content map[string]string
}

// ComputeHashes digests every chunk and the compilation. Input order never
// affects the result: modules are folded in identity order and chunks in
// key order.
func ComputeHashes(g *graph.ModuleGraph, cg *chunk.Graph, assign *ids.Assignment) *Hashes {
	h := &Hashes{
		Chunk:   make(map[string]string),
		Content: make(map[string]string),
	}

	chunks := append([]*chunk.Chunk(nil), cg.Chunks()...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Key() < chunks[j].Key() })

	build := blake3.New()
	for _, c := range chunks {
		ch := blake3.New()
		content := blake3.New()
		chunkID, _ := assign.ChunkID(c.Key())
		content.WriteString(chunkID)
		for _, id := range c.Modules() {
			ch.WriteString(string(id))
			moduleID, _ := assign.ModuleID(id)
			content.WriteString(moduleID)
			if m := g.Module(id); m != nil {
				ch.WriteString(m.ContentHash)
				content.WriteString(m.ContentHash)
			}
		}
		h.Chunk[c.Key()] = digest(ch)
		h.Content[c.Key()] = digest(content)

		build.WriteString(c.Key())
		build.WriteString(h.Content[c.Key()])
	}
	h.Build = digest(build)
	return h
}

func digest(h *blake3.Hasher) string {
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:hashLen]
}

// ModuleHash exposes a module's content digest truncated like the chunk
// digests. Stats reporting uses it.
func ModuleHash(m *graph.Module) string {
	if len(m.ContentHash) > hashLen {
		return m.ContentHash[:hashLen]
	}
	return m.ContentHash
}
