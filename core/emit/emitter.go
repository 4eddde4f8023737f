package emit

import (
	"encoding/json"
	"strings"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
	"github.com/ThatTomPerson/webpack/core/runtime"
	"github.com/ThatTomPerson/webpack/core/target"
)

// Report summarizes one emit pass.
type Report struct {
	// Assets are the rendered assets in emit order, maps included.
	Assets []*Asset
	// Paths are the filesystem paths written, compressed variants
	// included.
	Paths []string
}

// Emitter renders every chunk and writes the results out.
type Emitter struct {
	renderer *Renderer
	writer   *Writer
	opts     Options
	mapper   *runtime.SourceMapper
}

// NewEmitter builds an emitter for one target and output directory.
func NewEmitter(t target.Target, opts Options) *Emitter {
	opts = opts.withDefaults()
	return &Emitter{
		renderer: NewRenderer(t, opts),
		writer:   NewWriter(opts.Dir, opts.Compression...),
		opts:     opts,
		mapper:   runtime.NewSourceMapper("webpack"),
	}
}

// Renderer exposes the underlying renderer so callers can compute the
// filename table before assembling the runtime.
func (e *Emitter) Renderer() *Renderer { return e.renderer }

// Emit renders all chunks in registration order and writes them to the
// output directory. Chunk render failures are collected per chunk rather
// than aborting at the first, so one broken chunk still reports the
// others.
func (e *Emitter) Emit(g *graph.ModuleGraph, cg *chunk.Graph, assign *ids.Assignment, plan *runtime.Plan, hashes *Hashes) (*Report, error) {
	report := &Report{}
	var errs []error
	for _, c := range cg.Chunks() {
		asset, err := e.renderer.RenderChunk(g, c, assign, plan, hashes)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		assets := []*Asset{asset}
		if e.opts.SourceMap {
			mapAsset, err := e.sourceMapFor(g, asset)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			assets = append(assets, mapAsset)
		}
		for _, a := range assets {
			paths, err := e.writer.WriteAsset(a)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			report.Assets = append(report.Assets, a)
			report.Paths = append(report.Paths, paths...)
		}
	}
	if len(errs) > 0 {
		return report, joinErrors(errs)
	}
	return report, nil
}

// sourceMapFor derives the external map for a chunk asset and appends the
// sourceMappingURL footer to the asset in place. The map carries module
// granularity: sources and their content, keyed under the webpack://
// scheme.
func (e *Emitter) sourceMapFor(g *graph.ModuleGraph, a *Asset) (*Asset, error) {
	mapName := a.Filename + ".map"
	sm := runtime.SourceMap{
		Version: 3,
		File:    a.Filename,
	}
	for _, id := range a.Chunk.Modules() {
		m := g.Module(id)
		if m == nil {
			continue
		}
		sm.Sources = append(sm.Sources, e.mapper.ModuleURL(string(id)))
		sm.SourcesContent = append(sm.SourcesContent, string(m.Source))
	}
	body, err := json.Marshal(&sm)
	if err != nil {
		return nil, werrors.Wrap(err, "encoding source map")
	}

	url := strings.ReplaceAll(e.opts.SourceMapURL, "[url]", mapName)
	a.Source = append(a.Source, []byte("//# sourceMappingURL="+url+"\n")...)
	return &Asset{Filename: mapName, Source: body}, nil
}

// joinErrors folds collected emit failures into one error, keeping the
// first as the unwrap target.
func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	extra := make([]string, 0, len(errs)-1)
	for _, err := range errs[1:] {
		extra = append(extra, err.Error())
	}
	return werrors.Wrapf(errs[0], "%d emit failures, also: %s", len(errs), strings.Join(extra, "; "))
}
