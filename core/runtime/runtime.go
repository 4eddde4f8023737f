// Package runtime derives the support code a bundle needs at load time and
// assembles it into runtime modules.
//
// Requirements form a small closed vocabulary. Each module contributes the
// requirements its own code implies, an entry point takes the union over
// every chunk reachable from it, and the union is closed transitively: a
// requirement pulls in the requirements its own implementation needs. Each
// requirement materializes as exactly one runtime module per compilation;
// when several entry chunks carry the runtime inline they share the same
// module instances, so the emitted bytes are identical.
package runtime

import (
	"sort"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
	"github.com/ThatTomPerson/webpack/core/target"
)

// Requirement names one piece of runtime support.
type Requirement string

const (
	// ReqRequire is the module dispatcher and cache. Every bundle has it.
	ReqRequire Requirement = "require"
	// ReqHasOwn is the own-property probe helper.
	ReqHasOwn Requirement = "has-own"
	// ReqDefineExports installs getters on an exports object.
	ReqDefineExports Requirement = "define-exports"
	// ReqMakeNamespace tags an exports object as an ES module namespace.
	ReqMakeNamespace Requirement = "make-namespace"
	// ReqCompatDefault resolves the default export of mixed module styles.
	ReqCompatDefault Requirement = "compat-default"
	// ReqPublicPath exposes the base URL assets load from.
	ReqPublicPath Requirement = "public-path"
	// ReqChunkFilename maps chunk ids to emitted asset names.
	ReqChunkFilename Requirement = "chunk-filename"
	// ReqLoadScript loads a URL through an injected script tag.
	ReqLoadScript Requirement = "load-script"
	// ReqEnsureChunk is the on-demand chunk entry point returning a promise.
	ReqEnsureChunk Requirement = "ensure-chunk"
	// ReqChunkLoading is the transport-specific chunk installer and the
	// registration callback the wire contract names.
	ReqChunkLoading Requirement = "chunk-loading"
)

// renderOrder fixes the order runtime modules appear in: the dispatcher
// first, helpers next, the registration callback last so it can drain
// chunks that arrived before the runtime.
var renderOrder = []Requirement{
	ReqRequire,
	ReqHasOwn,
	ReqDefineExports,
	ReqMakeNamespace,
	ReqCompatDefault,
	ReqPublicPath,
	ReqChunkFilename,
	ReqLoadScript,
	ReqEnsureChunk,
	ReqChunkLoading,
}

// Set is a requirement set.
type Set map[Requirement]bool

// NewSet builds a set from the given requirements.
func NewSet(reqs ...Requirement) Set {
	s := make(Set, len(reqs))
	s.Add(reqs...)
	return s
}

// Add inserts requirements into the set.
func (s Set) Add(reqs ...Requirement) {
	for _, r := range reqs {
		s[r] = true
	}
}

// AddSet unions another set into this one.
func (s Set) AddSet(other Set) {
	for r := range other {
		s[r] = true
	}
}

// Has reports membership.
func (s Set) Has(r Requirement) bool {
	return s[r]
}

// Sorted returns the requirements in lexical order.
func (s Set) Sorted() []Requirement {
	out := make([]Requirement, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// expand closes the set: a requirement pulls in what its implementation
// uses. The chunk transport decides part of the closure, so expansion is
// capability-dependent.
func expand(s Set, caps target.Capabilities) {
	for {
		before := len(s)
		if s.Has(ReqEnsureChunk) {
			s.Add(ReqChunkLoading)
		}
		if s.Has(ReqChunkLoading) {
			s.Add(ReqChunkFilename, ReqHasOwn)
			if caps.ChunkLoading == target.LoadScript {
				s.Add(ReqLoadScript, ReqPublicPath)
			}
		}
		if s.Has(ReqCompatDefault) {
			s.Add(ReqDefineExports)
		}
		if s.Has(ReqDefineExports) {
			s.Add(ReqHasOwn)
		}
		if len(s) == before {
			return
		}
	}
}

// ModuleRequirements derives the requirements a single module contributes:
// namespace and getter support for ES modules, default-export interop when
// an ES module imports CommonJS or an external, and chunk loading for async
// boundaries.
func ModuleRequirements(g *graph.ModuleGraph, m *graph.Module) Set {
	s := NewSet()
	if m.BuildMeta.ESM {
		s.Add(ReqMakeNamespace, ReqDefineExports)
	}
	for _, dep := range g.Dependencies(m.Identity) {
		if dep.Kind == graph.KindAsync {
			s.Add(ReqEnsureChunk)
		}
		if m.BuildMeta.ESM && dep.Kind == graph.KindSync {
			if dep.External != nil {
				s.Add(ReqCompatDefault)
			} else if t := g.Module(dep.Target); t != nil && !t.BuildMeta.ESM {
				s.Add(ReqCompatDefault)
			}
		}
	}
	return s
}

// Module is one rendered runtime module. Instances are shared between the
// chunks that carry them.
type Module struct {
	Requirement Requirement
	Name        string
	Source      []byte
}

// Plan is the assembled runtime: which runtime modules go into which chunk.
type Plan struct {
	// RuntimeChunk is set when the runtime was extracted into its own
	// chunk; the entry chunks then carry no runtime modules themselves.
	RuntimeChunk *chunk.Chunk

	byChunk map[string][]*Module
	modules map[Requirement]*Module
}

// Modules returns the runtime modules for a chunk key in loading order.
func (p *Plan) Modules(chunkKey string) []*Module {
	return p.byChunk[chunkKey]
}

// Module returns the shared instance for a requirement, nil when the
// compilation never needed it.
func (p *Plan) Module(req Requirement) *Module {
	return p.modules[req]
}

// Requirements lists every requirement the compilation materialized.
func (p *Plan) Requirements() []Requirement {
	out := make([]Requirement, 0, len(p.modules))
	for r := range p.modules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Options configure runtime assembly.
type Options struct {
	// ExtractRuntime, when non-empty, names a dedicated runtime chunk
	// shared by all entry points. Empty keeps the runtime inline in every
	// entry chunk.
	ExtractRuntime string
	// PublicPath is the base URL emitted assets load from.
	PublicPath string
	// GlobalVar is the name of the registration global the wire contract
	// uses. Defaults to "webpackChunk".
	GlobalVar string
	// Filenames maps chunk ids to emitted asset names. When empty the
	// runtime derives "<id>.js".
	Filenames map[string]string
	// LoadTimeout overrides the target's chunk load timeout in
	// milliseconds. Zero keeps the target default.
	LoadTimeout int
}

// Assembler turns requirement sets into rendered runtime modules.
type Assembler struct {
	target target.Target
	opts   Options
}

// NewAssembler creates an assembler for a target.
func NewAssembler(t target.Target, opts Options) *Assembler {
	if opts.GlobalVar == "" {
		opts.GlobalVar = "webpackChunk"
	}
	return &Assembler{target: t, opts: opts}
}

// ExtractRuntime creates the dedicated runtime chunk and attaches it ahead
// of every entry chunk. Call before id assignment so the chunk gets an id;
// a no-op returning nil when extraction is not configured.
func (a *Assembler) ExtractRuntime(cg *chunk.Graph) *chunk.Chunk {
	if a.opts.ExtractRuntime == "" {
		return nil
	}
	rc := chunk.NewChunk(a.opts.ExtractRuntime, true)
	rc.Runtime = true
	cg.AddChunk(rc)
	for _, eg := range cg.EntryGroups() {
		eg.PrependChunk(rc)
	}
	return rc
}

// EntryRequirements computes the closed requirement set for one entry
// group: the union over all modules in every chunk reachable from it.
func (a *Assembler) EntryRequirements(g *graph.ModuleGraph, entry *chunk.Group) Set {
	reqs := NewSet(ReqRequire)

	seen := make(map[*chunk.Group]bool)
	stack := []*chunk.Group{entry}
	for len(stack) > 0 {
		gr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[gr] {
			continue
		}
		seen[gr] = true
		for _, c := range gr.Chunks {
			for _, id := range c.Modules() {
				if m := g.Module(id); m != nil {
					reqs.AddSet(ModuleRequirements(g, m))
				}
			}
		}
		children := gr.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	expand(reqs, a.target.Capabilities())
	return reqs
}

// Assemble renders the runtime modules for every entry point. When a
// runtime chunk exists in the graph the union of all entry requirements
// lands there; otherwise each entry chunk carries its own set, sharing
// module instances.
func (a *Assembler) Assemble(g *graph.ModuleGraph, cg *chunk.Graph, assign *ids.Assignment) (*Plan, error) {
	caps := a.target.Capabilities()
	plan := &Plan{
		byChunk: make(map[string][]*Module),
		modules: make(map[Requirement]*Module),
	}

	data, err := a.templateData(cg, assign, caps)
	if err != nil {
		return nil, err
	}

	var runtimeChunk *chunk.Chunk
	for _, c := range cg.Chunks() {
		if c.Runtime {
			runtimeChunk = c
			break
		}
	}

	if runtimeChunk != nil {
		union := NewSet()
		for _, eg := range cg.EntryGroups() {
			union.AddSet(a.EntryRequirements(g, eg))
		}
		mods, err := a.render(union, caps, data, plan)
		if err != nil {
			return nil, err
		}
		plan.byChunk[runtimeChunk.Key()] = mods
		plan.RuntimeChunk = runtimeChunk
		return plan, nil
	}

	for _, eg := range cg.EntryGroups() {
		ec := entryChunk(eg)
		if ec == nil {
			continue
		}
		mods, err := a.render(a.EntryRequirements(g, eg), caps, data, plan)
		if err != nil {
			return nil, err
		}
		plan.byChunk[ec.Key()] = mods
	}
	return plan, nil
}

// render materializes the requirements in loading order, reusing instances
// already rendered for another chunk.
func (a *Assembler) render(reqs Set, caps target.Capabilities, data *templateData, plan *Plan) ([]*Module, error) {
	var out []*Module
	for _, req := range renderOrder {
		if !reqs.Has(req) {
			continue
		}
		if m, ok := plan.modules[req]; ok {
			out = append(out, m)
			continue
		}
		name, ok := templateFor(req, caps)
		if !ok {
			return nil, werrors.Wrapf(werrors.ErrInternal, "no runtime template for requirement %s", req)
		}
		src, err := renderTemplate(name, data)
		if err != nil {
			return nil, err
		}
		m := &Module{
			Requirement: req,
			Name:        "runtime/" + string(req),
			Source:      src,
		}
		plan.modules[req] = m
		out = append(out, m)
	}
	return out, nil
}

// entryChunk picks the chunk that carries an entry group's runtime when it
// stays inline: the first initial non-runtime chunk.
func entryChunk(gr *chunk.Group) *chunk.Chunk {
	for _, c := range gr.Chunks {
		if c.Initial && !c.Runtime {
			return c
		}
	}
	return nil
}
