// Package bundler connects the compilation pipeline to the filesystem: it
// resolves requests, reads and scans sources, and produces graph modules
// with fully resolved dependency edges. Scan results are reused from the
// persistent build cache when the module content is unchanged.
package bundler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/internal/buildcache"
	"github.com/ThatTomPerson/webpack/internal/logging"
	"github.com/ThatTomPerson/webpack/internal/resolve"
	"github.com/ThatTomPerson/webpack/internal/scan"
)

// Options configures a Factory.
type Options struct {
	// Resolve configures module resolution.
	Resolve resolve.Options
	// Externals maps requests to host-provided references. A matching
	// request produces an external edge instead of a bundled module.
	Externals map[string]graph.ExternalRef
	// Defines substitutes identifiers in module source before scanning,
	// e.g. "process.env.NODE_ENV" -> `"production"`. Values are spliced
	// verbatim and should already be JS expressions.
	Defines map[string]string
	// Cache persists scan results across builds. Nil disables caching.
	Cache *buildcache.Cache
}

// Factory builds graph modules from disk.
type Factory struct {
	opts     Options
	resolver *resolve.Resolver
	defines  []define
}

type define struct {
	pattern *regexp.Regexp
	value   string
}

// New creates a Factory.
func New(opts Options) (*Factory, error) {
	resolver, err := resolve.New(opts.Resolve)
	if err != nil {
		return nil, err
	}
	f := &Factory{opts: opts, resolver: resolver}

	// Longer keys first so "process.env.DEBUG" wins over "process.env".
	keys := make([]string, 0, len(opts.Defines))
	for k := range opts.Defines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(k) + `\b`)
		if err != nil {
			return nil, werrors.NewValidation("defines", "cannot match "+k+": "+err.Error())
		}
		f.defines = append(f.defines, define{pattern: re, value: opts.Defines[k]})
	}
	return f, nil
}

// ResolveEntry resolves an entry request against the context directory.
func (f *Factory) ResolveEntry(ctx context.Context, dir, request string) (graph.Identity, error) {
	return f.resolver.Resolve(dir, request)
}

// Build loads, scans and resolves one module.
func (f *Factory) Build(ctx context.Context, id graph.Identity) (*graph.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loaders, path := resolve.SplitLoaders(string(id))
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, werrors.NewIO("read module", path, err)
	}

	switch {
	case len(loaders) == 0 && strings.HasSuffix(path, ".json"):
		return f.buildJSON(id, src)
	case len(loaders) > 0 || !scriptLike(path):
		// Loader execution is out of scope; non-script resources become
		// raw text exports so the emitted chunk stays valid JS.
		return f.buildRaw(id, src)
	}
	return f.buildScript(id, path, src)
}

func scriptLike(path string) bool {
	switch filepath.Ext(path) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

func (f *Factory) buildScript(id graph.Identity, path string, src []byte) (*graph.Module, error) {
	src = f.applyDefines(src)
	m := graph.NewModule(id, src)

	res, err := f.scanCached(path, m.ContentHash, src)
	if err != nil {
		return nil, err
	}
	m.BuildMeta.ESM = res.ESM
	if res.ExportsKnown {
		m.Exports = graph.NamedExports(res.Exports...)
	}

	dir := filepath.Dir(path)
	for _, d := range res.Directives {
		dep, err := f.edgeFor(dir, d)
		if err != nil {
			return nil, err
		}
		m.Dependencies = append(m.Dependencies, dep)
	}
	return m, nil
}

// scanCached returns the scan result for the given content, consulting the
// build cache first. Cache write failures are logged, not fatal; the scan
// already succeeded.
func (f *Factory) scanCached(path, contentHash string, src []byte) (*scan.Result, error) {
	if f.opts.Cache != nil {
		res, hit, err := f.opts.Cache.Get(contentHash)
		if err != nil {
			logging.Warn("build cache read failed", "path", path, "error", err)
		} else if hit {
			return res, nil
		}
	}
	res, err := scan.File(path, src)
	if err != nil {
		return nil, err
	}
	if f.opts.Cache != nil {
		if err := f.opts.Cache.Put(contentHash, res); err != nil {
			logging.Warn("build cache write failed", "path", path, "error", err)
		}
	}
	return res, nil
}

// edgeFor resolves one scanned directive into a dependency edge.
func (f *Factory) edgeFor(dir string, d scan.Directive) (graph.Dependency, error) {
	if ext, ok := f.opts.Externals[d.Request]; ok {
		ref := ext
		return graph.Dependency{Request: d.Request, External: &ref, Kind: d.Kind}, nil
	}

	kind := d.Kind
	if d.Mode == "eager" {
		// Eager boundaries load with the parent instead of splitting.
		kind = graph.KindSync
	}

	target, err := f.resolver.Resolve(dir, d.Request)
	if err != nil {
		if kind == graph.KindWeak {
			// A weak reference to a module nobody bundles stays a
			// reference; the runtime reports it missing if reached.
			return graph.Dependency{Request: d.Request, Kind: kind}, nil
		}
		return graph.Dependency{}, err
	}
	return graph.Dependency{
		Request:   d.Request,
		Target:    target,
		Kind:      kind,
		ChunkName: d.ChunkName,
	}, nil
}

// buildJSON wraps a JSON document as a CommonJS module with its top-level
// keys as the export surface.
func (f *Factory) buildJSON(id graph.Identity, src []byte) (*graph.Module, error) {
	var doc any
	if err := json.Unmarshal(src, &doc); err != nil {
		return nil, werrors.NewParse("json", string(id), err.Error())
	}

	var b strings.Builder
	b.WriteString("module.exports = ")
	b.Write(src)
	b.WriteString(";\n")
	m := graph.NewModule(id, []byte(b.String()))

	if obj, ok := doc.(map[string]any); ok {
		names := make([]string, 0, len(obj))
		for k := range obj {
			names = append(names, k)
		}
		sort.Strings(names)
		m.Exports = graph.NamedExports(names...)
	}
	return m, nil
}

// buildRaw exposes the file contents as a single string export.
func (f *Factory) buildRaw(id graph.Identity, src []byte) (*graph.Module, error) {
	text, err := json.Marshal(string(src))
	if err != nil {
		return nil, werrors.Wrapf(err, "encoding raw module %s", id)
	}
	body := "module.exports = " + string(text) + ";\n"
	m := graph.NewModule(id, []byte(body))
	m.Exports = graph.NamedExports("default")
	return m, nil
}

func (f *Factory) applyDefines(src []byte) []byte {
	for _, d := range f.defines {
		src = d.pattern.ReplaceAll(src, []byte(d.value))
	}
	return src
}
