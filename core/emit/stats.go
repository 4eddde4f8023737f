package emit

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
)

// Stats is the machine-readable build report. Tooling diffs it between
// builds, so everything except BuildID and Time is deterministic for the
// same input.
type Stats struct {
	BuildID string `json:"buildId"`
	Time    int64  `json:"time"`
	Hash    string `json:"hash"`

	Assets  []AssetStats  `json:"assets"`
	Chunks  []ChunkStats  `json:"chunks"`
	Modules []ModuleStats `json:"modules"`

	// Entries maps entry names to their assets in load order, runtime
	// chunk first.
	Entries map[string][]string `json:"entrypoints"`
}

// AssetStats describes one emitted file.
type AssetStats struct {
	Name   string   `json:"name"`
	Size   int      `json:"size"`
	Chunks []string `json:"chunks,omitempty"`
}

// ChunkStats describes one chunk.
type ChunkStats struct {
	ID      string   `json:"id"`
	Names   []string `json:"names,omitempty"`
	Initial bool     `json:"initial"`
	Entry   bool     `json:"entry"`
	Size    int      `json:"size"`
	Modules int      `json:"modules"`
	Files   []string `json:"files,omitempty"`
}

// ModuleStats describes one module.
type ModuleStats struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Size   int      `json:"size"`
	Hash   string   `json:"hash"`
	Chunks []string `json:"chunks,omitempty"`
}

// BuildStats assembles the stats report from a finished emit pass.
func BuildStats(g *graph.ModuleGraph, cg *chunk.Graph, assign *ids.Assignment, hashes *Hashes, report *Report, elapsed time.Duration) *Stats {
	s := &Stats{
		BuildID: uuid.NewString(),
		Time:    elapsed.Milliseconds(),
		Hash:    hashes.Build,
		Entries: make(map[string][]string),
	}

	fileOf := make(map[string]string)
	for _, a := range report.Assets {
		if a.Chunk == nil {
			s.Assets = append(s.Assets, AssetStats{Name: a.Filename, Size: len(a.Source)})
			continue
		}
		id, _ := assign.ChunkID(a.Chunk.Key())
		fileOf[a.Chunk.Key()] = a.Filename
		s.Assets = append(s.Assets, AssetStats{
			Name:   a.Filename,
			Size:   len(a.Source),
			Chunks: []string{id},
		})
	}

	for _, c := range cg.Chunks() {
		chunkID, _ := assign.ChunkID(c.Key())
		cs := ChunkStats{
			ID:      chunkID,
			Initial: c.Initial || c.Runtime,
			Entry:   c.Initial,
			Modules: c.Len(),
		}
		if c.Name != "" {
			cs.Names = []string{c.Name}
		}
		for _, id := range c.Modules() {
			if m := g.Module(id); m != nil {
				cs.Size += m.Size()
			}
		}
		if f, ok := fileOf[c.Key()]; ok {
			cs.Files = []string{f}
		}
		s.Chunks = append(s.Chunks, cs)
	}

	for _, m := range g.Modules() {
		moduleID, _ := assign.ModuleID(m.Identity)
		ms := ModuleStats{
			ID:   moduleID,
			Name: string(m.Identity),
			Size: m.Size(),
			Hash: ModuleHash(m),
		}
		for _, c := range cg.ChunksOf(m.Identity) {
			chunkID, _ := assign.ChunkID(c.Key())
			ms.Chunks = append(ms.Chunks, chunkID)
		}
		s.Modules = append(s.Modules, ms)
	}

	for _, eg := range cg.EntryGroups() {
		var files []string
		for _, c := range eg.Chunks {
			if f, ok := fileOf[c.Key()]; ok {
				files = append(files, f)
			}
		}
		s.Entries[eg.Name] = files
	}
	return s
}

// Encode writes the stats as indented JSON.
func (s *Stats) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return werrors.Wrap(err, "encoding stats")
	}
	return nil
}
