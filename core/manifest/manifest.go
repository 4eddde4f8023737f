// Package manifest builds the machine-readable description of a bundle:
// which module identities it contains, under which ids, with which build
// metadata and exports. Another build consumes the manifest to reference
// this bundle's modules without re-bundling them.
package manifest

import (
	"bytes"
	"encoding/json"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
)

// Entry describes one exposed module.
type Entry struct {
	ID        string          `json:"id"`
	BuildMeta graph.BuildMeta `json:"buildMeta"`
	// Exports lists the known export names. Absent when the exports could
	// not be statically determined, which consumers must treat as "anything
	// goes".
	Exports *[]string `json:"exports,omitempty"`
}

// Manifest is the emitted artifact.
type Manifest struct {
	Name    string           `json:"name"`
	Type    string           `json:"type"`
	Content map[string]Entry `json:"content"`
}

// Options configure manifest building.
type Options struct {
	// Name is the manifest name consumers reference.
	Name string
	// Type is the library type the bundle was emitted with.
	Type string
	// EntryOnly restricts the content to modules of initial chunks,
	// hiding on-demand internals from consumers.
	EntryOnly bool
}

// Build assembles the manifest for a compiled bundle.
func Build(g *graph.ModuleGraph, cg *chunk.Graph, assign *ids.Assignment, opts Options) (*Manifest, error) {
	m := &Manifest{
		Name:    opts.Name,
		Type:    opts.Type,
		Content: make(map[string]Entry),
	}

	for _, mod := range g.Modules() {
		if opts.EntryOnly && !inInitialChunk(cg, mod.Identity) {
			continue
		}
		id, ok := assign.ModuleID(mod.Identity)
		if !ok {
			return nil, werrors.Wrapf(werrors.ErrInternal, "module %s has no id", mod.Identity)
		}
		entry := Entry{ID: id, BuildMeta: mod.BuildMeta}
		if mod.Exports.Known {
			names := append([]string(nil), mod.Exports.Names...)
			entry.Exports = &names
		}
		m.Content[string(mod.Identity)] = entry
	}
	return m, nil
}

func inInitialChunk(cg *chunk.Graph, id graph.Identity) bool {
	for _, c := range cg.ChunksOf(id) {
		if c.Initial {
			return true
		}
	}
	return false
}

// Encode renders the manifest as indented JSON with a trailing newline.
// Object keys marshal sorted, so the same compilation always produces the
// same bytes.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, werrors.Wrap(err, "encoding manifest")
	}
	return buf.Bytes(), nil
}

// Parse reads a manifest back.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, werrors.NewParse("manifest", "", err.Error())
	}
	return &m, nil
}
