// Package compile drives the build pipeline: graph construction, code
// splitting, id assignment, runtime assembly, manifest and asset emission.
// Structural errors are collected on the compilation and reported together
// at the phase boundary instead of aborting at the first.
package compile

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ThatTomPerson/webpack/core/chunk"
	"github.com/ThatTomPerson/webpack/core/emit"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
	"github.com/ThatTomPerson/webpack/core/manifest"
	"github.com/ThatTomPerson/webpack/core/runtime"
	"github.com/ThatTomPerson/webpack/core/split"
	"github.com/ThatTomPerson/webpack/core/target"
	"github.com/ThatTomPerson/webpack/internal/logging"
)

// ModuleFactory turns requests into modules. The bundler glue wires the
// resolver and scanner behind it; tests substitute an in-memory fixture.
type ModuleFactory interface {
	// ResolveEntry resolves an entry request against the compilation
	// context directory.
	ResolveEntry(ctx context.Context, dir, request string) (graph.Identity, error)
	// Build produces the module for a resolved identity. Dependency
	// targets in the result are already resolved.
	Build(ctx context.Context, id graph.Identity) (*graph.Module, error)
}

// Config is the build configuration after file loading and flag merging.
type Config struct {
	// Context is the directory entry requests resolve against.
	Context string
	// Entries maps entry names to their requests, e.g. "main" to
	// "./src/index.js".
	Entries map[string]string
	// Target selects the script host.
	Target target.Target
	// IDStrategy names the id assignment strategy. Empty means natural.
	IDStrategy string
	// Split tunes the code splitter.
	Split split.Options
	// ExtractRuntime names the runtime chunk. Empty keeps the runtime
	// inline in every entry chunk.
	ExtractRuntime string
	// PublicPath is the base URL assets load from.
	PublicPath string
	// GlobalVar overrides the chunk registration global.
	GlobalVar string
	// ChunkLoadTimeout overrides the target's chunk load timeout, in
	// milliseconds. Zero keeps the target default.
	ChunkLoadTimeout int
	// Output configures rendering and the output directory.
	Output emit.Options
	// Manifest, when set, emits a module manifest next to the assets.
	Manifest *manifest.Options
	// Stats emits a stats.json build report.
	Stats bool
}

// Compilation is the mutable state of one build. Hooks receive it and may
// inspect or adjust any phase product that already exists.
type Compilation struct {
	BuildID string
	Config  Config

	Graph      *graph.ModuleGraph
	Chunks     *chunk.Graph
	Entries    []split.Entry
	Assignment *ids.Assignment
	Plan       *runtime.Plan
	Hashes     *emit.Hashes
	Manifest   *manifest.Manifest
	Report     *emit.Report
	Stats      *emit.Stats

	Hooks Hooks

	errs []error
}

// AddError collects a structural error without stopping the current phase.
func (c *Compilation) AddError(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Errors returns every collected error in occurrence order.
func (c *Compilation) Errors() []error {
	return c.errs
}

// Err folds the collected errors into one, nil when the build is clean.
// The first error is the unwrap target so callers can still match
// sentinels.
func (c *Compilation) Err() error {
	switch len(c.errs) {
	case 0:
		return nil
	case 1:
		return c.errs[0]
	}
	extra := make([]string, 0, len(c.errs)-1)
	for _, err := range c.errs[1:] {
		extra = append(extra, err.Error())
	}
	return werrors.Wrapf(c.errs[0], "%d compilation errors, also: %s", len(c.errs), strings.Join(extra, "; "))
}

// Compiler runs builds for one configuration.
type Compiler struct {
	// Hooks installed here are copied onto every compilation the
	// compiler runs.
	Hooks Hooks

	cfg     Config
	factory ModuleFactory
}

// New creates a compiler. The factory supplies modules; everything else
// comes from the configuration.
func New(cfg Config, factory ModuleFactory) *Compiler {
	return &Compiler{cfg: cfg, factory: factory}
}

// Analyze runs graph construction only, for tooling that inspects
// dependencies without splitting or emitting assets.
func (c *Compiler) Analyze(ctx context.Context) (*Compilation, error) {
	comp := &Compilation{
		BuildID: uuid.NewString(),
		Config:  c.cfg,
		Graph:   graph.NewModuleGraph(),
		Hooks:   c.Hooks,
	}
	if err := c.buildGraph(ctx, comp); err != nil {
		return comp, err
	}
	return comp, nil
}

// Run executes the full pipeline. The returned compilation always carries
// whatever phase products were produced before a failure, so callers can
// report partial results.
func (c *Compiler) Run(ctx context.Context) (*Compilation, error) {
	start := time.Now()
	comp := &Compilation{
		BuildID: uuid.NewString(),
		Config:  c.cfg,
		Graph:   graph.NewModuleGraph(),
		Hooks:   c.Hooks,
	}
	logging.CompilationEvent(comp.BuildID, "start", "entries", len(c.cfg.Entries))

	if err := c.buildGraph(ctx, comp); err != nil {
		return comp, err
	}
	if err := c.splitChunks(comp); err != nil {
		return comp, err
	}
	if err := c.assignIDs(comp); err != nil {
		return comp, err
	}
	if err := c.assembleRuntime(comp); err != nil {
		return comp, err
	}
	if err := c.emitAssets(comp, start); err != nil {
		return comp, err
	}

	logging.CompilationEvent(comp.BuildID, "done",
		"modules", comp.Graph.Len(),
		"chunks", len(comp.Chunks.Chunks()),
		"elapsed", time.Since(start).String())
	return comp, nil
}

// buildGraph resolves the entries and walks module dependencies
// breadth-first until the graph closes. Factory failures are collected
// per request; the phase fails at its end if anything failed.
func (c *Compiler) buildGraph(ctx context.Context, comp *Compilation) error {
	names := make([]string, 0, len(c.cfg.Entries))
	for name := range c.cfg.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var queue []graph.Identity
	for _, name := range names {
		request := c.cfg.Entries[name]
		id, err := c.factory.ResolveEntry(ctx, c.cfg.Context, request)
		if err != nil {
			comp.AddError(werrors.NewUnreachableEntry(name, request, err))
			continue
		}
		comp.Entries = append(comp.Entries, split.Entry{Name: name, Module: id})
		queue = append(queue, id)
	}

	seen := make(map[graph.Identity]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		m, err := c.factory.Build(ctx, id)
		if err != nil {
			comp.AddError(werrors.Wrapf(err, "building module %s", id))
			continue
		}
		// The factory returns modules with resolved edges in place, so
		// only the targets need queueing.
		if err := comp.Graph.Add(m); err != nil {
			comp.AddError(err)
			continue
		}
		for _, d := range m.Dependencies {
			if d.External == nil && d.Target != "" && !seen[d.Target] {
				queue = append(queue, d.Target)
			}
		}
	}
	comp.Graph.Freeze()

	if err := comp.Err(); err != nil {
		logging.CompilationError(comp.BuildID, "graph", err)
		return err
	}
	logging.CompilationEvent(comp.BuildID, "graph", "modules", comp.Graph.Len())
	return nil
}

func (c *Compiler) splitChunks(comp *Compilation) error {
	comp.runHooks(comp.Hooks.BeforeSplit)

	cg, err := split.New(c.cfg.Split).Split(comp.Graph, comp.Entries)
	if err != nil {
		comp.AddError(err)
	} else {
		comp.Chunks = cg
	}

	comp.runHooks(comp.Hooks.AfterSplit)
	if err := comp.Err(); err != nil {
		logging.CompilationError(comp.BuildID, "split", err)
		return err
	}
	logging.CompilationEvent(comp.BuildID, "split", "chunks", len(comp.Chunks.Chunks()))
	return nil
}

func (c *Compiler) assignIDs(comp *Compilation) error {
	// The runtime chunk participates in id assignment, so it is carved
	// out first.
	c.assembler(nil).ExtractRuntime(comp.Chunks)

	comp.runHooks(comp.Hooks.BeforeAssignIDs)

	strategy, err := ids.ByName(c.cfg.IDStrategy)
	if err != nil {
		comp.AddError(err)
		return comp.Err()
	}
	roots := make([]graph.Identity, len(comp.Entries))
	for i, e := range comp.Entries {
		roots[i] = e.Module
	}
	assign, err := strategy.Assign(&ids.Context{Graph: comp.Graph, Chunks: comp.Chunks, Entries: roots})
	if err != nil {
		comp.AddError(err)
	} else {
		comp.Assignment = assign
	}

	comp.runHooks(comp.Hooks.AfterAssignIDs)
	if err := comp.Err(); err != nil {
		logging.CompilationError(comp.BuildID, "ids", err)
		return err
	}
	logging.CompilationEvent(comp.BuildID, "ids", "strategy", strategy.Name())
	return nil
}

func (c *Compiler) assembleRuntime(comp *Compilation) error {
	comp.Hashes = emit.ComputeHashes(comp.Graph, comp.Chunks, comp.Assignment)

	renderer := emit.NewRenderer(c.cfg.Target, c.outputOptions())
	filenames, err := renderer.Filenames(comp.Chunks, comp.Assignment, comp.Hashes)
	if err != nil {
		comp.AddError(err)
		return comp.Err()
	}

	plan, err := c.assembler(filenames).Assemble(comp.Graph, comp.Chunks, comp.Assignment)
	if err != nil {
		comp.AddError(err)
		return comp.Err()
	}
	comp.Plan = plan

	if c.cfg.Manifest != nil {
		man, err := manifest.Build(comp.Graph, comp.Chunks, comp.Assignment, *c.cfg.Manifest)
		if err != nil {
			comp.AddError(err)
			return comp.Err()
		}
		comp.Manifest = man
	}
	logging.CompilationEvent(comp.BuildID, "runtime", "requirements", len(plan.Requirements()))
	return nil
}

func (c *Compiler) emitAssets(comp *Compilation, start time.Time) error {
	comp.runHooks(comp.Hooks.BeforeEmit)
	if err := comp.Err(); err != nil {
		return err
	}

	emitter := emit.NewEmitter(c.cfg.Target, c.outputOptions())
	report, err := emitter.Emit(comp.Graph, comp.Chunks, comp.Assignment, comp.Plan, comp.Hashes)
	if report != nil {
		comp.Report = report
	}
	if err != nil {
		comp.AddError(err)
	}
	if report != nil {
		for _, a := range report.Assets {
			if a.Chunk != nil {
				chunkID, _ := comp.Assignment.ChunkID(a.Chunk.Key())
				logging.ChunkEmitted(chunkID, a.Filename, len(a.Source))
			}
		}
	}

	artifacts := emit.NewWriter(c.cfg.Output.Dir)
	if comp.Manifest != nil {
		body, err := comp.Manifest.Encode()
		if err != nil {
			comp.AddError(err)
		} else if _, err := artifacts.WriteAsset(&emit.Asset{Filename: "manifest.json", Source: body}); err != nil {
			comp.AddError(err)
		}
	}
	if c.cfg.Stats && comp.Report != nil {
		comp.Stats = emit.BuildStats(comp.Graph, comp.Chunks, comp.Assignment, comp.Hashes, comp.Report, time.Since(start))
		comp.Stats.BuildID = comp.BuildID
		var buf bytes.Buffer
		if err := comp.Stats.Encode(&buf); err != nil {
			comp.AddError(err)
		} else if _, err := artifacts.WriteAsset(&emit.Asset{Filename: "stats.json", Source: buf.Bytes()}); err != nil {
			comp.AddError(err)
		}
	}

	comp.runHooks(comp.Hooks.AfterEmit)
	if err := comp.Err(); err != nil {
		logging.CompilationError(comp.BuildID, "emit", err)
		return err
	}
	return nil
}

func (c *Compiler) outputOptions() emit.Options {
	opts := c.cfg.Output
	if opts.GlobalVar == "" {
		opts.GlobalVar = c.cfg.GlobalVar
	}
	return opts
}

func (c *Compiler) assembler(filenames map[string]string) *runtime.Assembler {
	return runtime.NewAssembler(c.cfg.Target, runtime.Options{
		ExtractRuntime: c.cfg.ExtractRuntime,
		PublicPath:     c.cfg.PublicPath,
		GlobalVar:      c.cfg.GlobalVar,
		Filenames:      filenames,
		LoadTimeout:    c.cfg.ChunkLoadTimeout,
	})
}
