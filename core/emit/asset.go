package emit

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
	"github.com/ThatTomPerson/webpack/core/runtime"
	"github.com/ThatTomPerson/webpack/core/target"
)

// Asset is one file ready to be written to the output directory.
type Asset struct {
	// Filename is relative to the output directory.
	Filename string
	// Source is the asset body.
	Source []byte
	// Chunk is the chunk the asset was rendered from, nil for derived
	// assets such as source maps or stats.
	Chunk *chunk.Chunk
}

// Options configure rendering and writing.
type Options struct {
	// Dir is the output directory.
	Dir string
	// Filename is the template for initial chunk assets.
	Filename string
	// ChunkFilename is the template for on-demand chunk assets.
	ChunkFilename string
	// GlobalVar names the registration global on-demand chunks push to.
	GlobalVar string
	// Library, when set, assigns the entry exports to a global of that
	// name.
	Library string
	// SourceMap emits an external .map file per chunk asset and appends
	// the sourceMappingURL footer.
	SourceMap bool
	// SourceMapURL is the footer template. [url] expands to the map
	// filename.
	SourceMapURL string
	// Compression lists additional encodings to write each asset in.
	Compression []Compression
}

func (o Options) withDefaults() Options {
	if o.Filename == "" {
		o.Filename = "[name].js"
	}
	if o.ChunkFilename == "" {
		o.ChunkFilename = "[id].js"
	}
	if o.GlobalVar == "" {
		o.GlobalVar = "webpackChunk"
	}
	if o.SourceMapURL == "" {
		o.SourceMapURL = "[url]"
	}
	return o
}

// Renderer turns chunks into assets for one target.
type Renderer struct {
	target target.Target
	opts   Options
}

// NewRenderer builds a renderer. Zero-value options get the usual
// defaults.
func NewRenderer(t target.Target, opts Options) *Renderer {
	return &Renderer{target: t, opts: opts.withDefaults()}
}

// Filenames expands the filename template for every chunk, keyed by chunk
// id. The result feeds the runtime's filename table, so it must be
// computed before runtime modules are rendered.
func (r *Renderer) Filenames(cg *chunk.Graph, assign *ids.Assignment, hashes *Hashes) (map[string]string, error) {
	out := make(map[string]string, len(cg.Chunks()))
	for _, c := range cg.Chunks() {
		name, err := r.filenameFor(c, assign, hashes)
		if err != nil {
			return nil, err
		}
		id, ok := assign.ChunkID(c.Key())
		if !ok {
			return nil, werrors.Wrapf(werrors.ErrInternal, "chunk %s has no id", c.Key())
		}
		out[id] = name
	}
	return out, nil
}

func (r *Renderer) filenameFor(c *chunk.Chunk, assign *ids.Assignment, hashes *Hashes) (string, error) {
	tmpl := r.opts.ChunkFilename
	if c.Initial || c.Runtime {
		tmpl = r.opts.Filename
	}
	id, ok := assign.ChunkID(c.Key())
	if !ok {
		return "", werrors.Wrapf(werrors.ErrInternal, "chunk %s has no id", c.Key())
	}
	return ExpandTemplate(tmpl, Vars{
		ID:          id,
		Name:        c.Name,
		Hash:        hashes.Build,
		ChunkHash:   hashes.Chunk[c.Key()],
		ContentHash: hashes.Content[c.Key()],
	})
}

// RenderChunk renders one chunk into its asset. Entry chunks get the
// bootstrap wrapper, on-demand chunks get the registration payload for
// the target's loading mechanism.
func (r *Renderer) RenderChunk(g *graph.ModuleGraph, c *chunk.Chunk, assign *ids.Assignment, plan *runtime.Plan, hashes *Hashes) (*Asset, error) {
	name, err := r.filenameFor(c, assign, hashes)
	if err != nil {
		return nil, err
	}

	var src []byte
	switch {
	case c.Runtime && c.Len() == 0:
		src, err = r.renderRuntimeChunk(c, plan)
	case c.Initial:
		src, err = r.renderEntryChunk(g, c, assign, plan)
	default:
		src, err = r.renderAsyncChunk(g, c, assign)
	}
	if err != nil {
		return nil, err
	}
	return &Asset{Filename: name, Source: src, Chunk: c}, nil
}

// renderEntryChunk wraps the module table in an IIFE together with the
// runtime modules and the startup call. When the runtime lives in a
// separate chunk the entry instead registers itself through the global
// and hands the startup over as the runtime argument.
func (r *Renderer) renderEntryChunk(g *graph.ModuleGraph, c *chunk.Chunk, assign *ids.Assignment, plan *runtime.Plan) ([]byte, error) {
	caps := r.target.Capabilities()
	mods := plan.Modules(c.Key())

	if plan.RuntimeChunk != nil && plan.RuntimeChunk != c {
		if caps.ChunkLoading != target.LoadScript {
			return nil, werrors.NewValidation("runtime", "extracted runtime requires script chunk loading on target "+r.target.String())
		}
		return r.renderDeferredEntry(g, c, assign)
	}

	var b bytes.Buffer
	b.WriteString("(() => { // webpackBootstrap\n")
	b.WriteString("var __webpack_modules__ = (")
	if err := writeModuleMap(&b, g, c, assign); err != nil {
		return nil, err
	}
	b.WriteString(");\n")
	writeRuntime(&b, mods)
	if err := r.writeStartup(&b, c, assign); err != nil {
		return nil, err
	}
	b.WriteString("})();\n")
	return b.Bytes(), nil
}

// renderDeferredEntry emits an entry chunk whose runtime was extracted:
// the chunk registers like an on-demand chunk and passes its startup as
// the third tuple element, which the runtime invokes once the chunk is
// merged.
func (r *Renderer) renderDeferredEntry(g *graph.ModuleGraph, c *chunk.Chunk, assign *ids.Assignment) ([]byte, error) {
	caps := r.target.Capabilities()
	global, err := jsString(r.opts.GlobalVar)
	if err != nil {
		return nil, err
	}
	id, err := chunkIDLiteral(c, assign)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("(" + caps.GlobalObject + "[" + global + "] = " + caps.GlobalObject + "[" + global + "] || []).push([[" + id + "], ")
	if err := writeModuleMap(&b, g, c, assign); err != nil {
		return nil, err
	}
	b.WriteString(", (__webpack_require__) => {\n")
	if err := r.writeStartup(&b, c, assign); err != nil {
		return nil, err
	}
	b.WriteString("}]);\n")
	return b.Bytes(), nil
}

// renderAsyncChunk emits the registration payload for an on-demand chunk.
// Script targets push onto the global array, require and hook targets
// export the data triple for the host to hand back to the runtime.
func (r *Renderer) renderAsyncChunk(g *graph.ModuleGraph, c *chunk.Chunk, assign *ids.Assignment) ([]byte, error) {
	caps := r.target.Capabilities()
	id, err := chunkIDLiteral(c, assign)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if caps.ChunkLoading == target.LoadScript {
		global, err := jsString(r.opts.GlobalVar)
		if err != nil {
			return nil, err
		}
		b.WriteString("(" + caps.GlobalObject + "[" + global + "] = " + caps.GlobalObject + "[" + global + "] || []).push([[" + id + "], ")
		if err := writeModuleMap(&b, g, c, assign); err != nil {
			return nil, err
		}
		b.WriteString("]);\n")
		return b.Bytes(), nil
	}

	b.WriteString("exports.ids = [" + id + "];\n")
	b.WriteString("exports.modules = ")
	if err := writeModuleMap(&b, g, c, assign); err != nil {
		return nil, err
	}
	b.WriteString(";\n")
	return b.Bytes(), nil
}

// renderRuntimeChunk emits the extracted runtime: the bootstrap IIFE with
// an empty module table and no startup. Entry chunks registered through
// the global provide both.
func (r *Renderer) renderRuntimeChunk(c *chunk.Chunk, plan *runtime.Plan) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("(() => { // webpackBootstrap\n")
	b.WriteString("var __webpack_modules__ = ({});\n")
	writeRuntime(&b, plan.Modules(c.Key()))
	b.WriteString("})();\n")
	return b.Bytes(), nil
}

func (r *Renderer) writeStartup(b *bytes.Buffer, c *chunk.Chunk, assign *ids.Assignment) error {
	if len(c.Roots) == 0 {
		return werrors.Wrapf(werrors.ErrInternal, "entry chunk %s has no root module", c.Key())
	}
	id, ok := assign.ModuleID(c.Roots[0])
	if !ok {
		return werrors.Wrapf(werrors.ErrInternal, "entry module %s has no id", c.Roots[0])
	}
	quoted, err := jsString(id)
	if err != nil {
		return err
	}
	b.WriteString("// startup\n")
	if r.opts.Library != "" {
		b.WriteString("var " + r.opts.Library + " = __webpack_require__(" + quoted + ");\n")
		return nil
	}
	b.WriteString("var __webpack_exports__ = __webpack_require__(" + quoted + ");\n")
	return nil
}

// writeModuleMap emits the factories object. Modules are keyed by id and
// ordered numerically when every id is a decimal number, lexically
// otherwise, so the same chunk always renders to the same bytes.
func writeModuleMap(b *bytes.Buffer, g *graph.ModuleGraph, c *chunk.Chunk, assign *ids.Assignment) error {
	type entry struct {
		id string
		m  *graph.Module
	}
	entries := make([]entry, 0, c.Len())
	for _, mid := range c.Modules() {
		m := g.Module(mid)
		if m == nil {
			return werrors.Wrapf(werrors.ErrInternal, "chunk %s references unknown module %s", c.Key(), mid)
		}
		id, ok := assign.ModuleID(mid)
		if !ok {
			return werrors.Wrapf(werrors.ErrInternal, "module %s has no id", mid)
		}
		entries = append(entries, entry{id: id, m: m})
	}
	sort.Slice(entries, func(i, j int) bool { return idLess(entries[i].id, entries[j].id) })

	b.WriteString("{\n")
	for i, e := range entries {
		quoted, err := jsString(e.id)
		if err != nil {
			return err
		}
		b.WriteString(quoted)
		b.WriteString(": ")
		b.Write(runtime.Decorate(e.m, runtime.DecoratorFor(e.m)))
		if i < len(entries)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return nil
}

func writeRuntime(b *bytes.Buffer, mods []*runtime.Module) {
	for _, m := range mods {
		b.WriteString("// " + m.Name + "\n")
		b.WriteString("(() => {\n")
		b.Write(m.Source)
		if len(m.Source) > 0 && m.Source[len(m.Source)-1] != '\n' {
			b.WriteString("\n")
		}
		b.WriteString("})();\n")
	}
}

func chunkIDLiteral(c *chunk.Chunk, assign *ids.Assignment) (string, error) {
	id, ok := assign.ChunkID(c.Key())
	if !ok {
		return "", werrors.Wrapf(werrors.ErrInternal, "chunk %s has no id", c.Key())
	}
	return jsString(id)
}

// idLess orders ids the way a script host enumerates integer-like keys:
// numeric ids ascend numerically and sort before named ids.
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return a < b
}

// jsString renders a Go string as a JS string literal. JSON is a subset
// of JS here, and json escapes the line separators JS literals cannot
// contain raw.
func jsString(s string) (string, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return "", werrors.Wrap(err, "encoding js string")
	}
	return string(out), nil
}
