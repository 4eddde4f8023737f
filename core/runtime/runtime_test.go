package runtime

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThatTomPerson/webpack/core/chunk"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/ids"
	"github.com/ThatTomPerson/webpack/core/split"
	"github.com/ThatTomPerson/webpack/core/target"
)

type moduleSpec struct {
	id   graph.Identity
	esm  bool
	deps []graph.Dependency
}

// buildBundle assembles graph, chunks and ids for a set of modules.
func buildBundle(t *testing.T, specs []moduleSpec, entries []split.Entry) (*graph.ModuleGraph, *chunk.Graph, *ids.Assignment) {
	t.Helper()
	g := graph.NewModuleGraph()
	for _, s := range specs {
		m := graph.NewModule(s.id, []byte("source of "+string(s.id)))
		m.BuildMeta.ESM = s.esm
		if err := g.Add(m); err != nil {
			t.Fatalf("Add(%s) failed: %v", s.id, err)
		}
	}
	for _, s := range specs {
		for _, d := range s.deps {
			if err := g.AddDependency(s.id, d); err != nil {
				t.Fatalf("AddDependency(%s) failed: %v", s.id, err)
			}
		}
	}
	g.Freeze()

	cg, err := split.New(split.DefaultOptions()).Split(g, entries)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	return g, cg, nil
}

func assignIDs(t *testing.T, g *graph.ModuleGraph, cg *chunk.Graph, entries []graph.Identity) *ids.Assignment {
	t.Helper()
	assign, err := (ids.Natural{}).Assign(&ids.Context{Graph: g, Chunks: cg, Entries: entries})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	return assign
}

func syncDep(target graph.Identity) graph.Dependency {
	return graph.Dependency{Request: string(target), Target: target, Kind: graph.KindSync}
}

func asyncDep(target graph.Identity) graph.Dependency {
	return graph.Dependency{Request: string(target), Target: target, Kind: graph.KindAsync}
}

func TestModuleRequirements(t *testing.T) {
	g := graph.NewModuleGraph()
	esm := graph.NewModule("./esm.js", []byte("export const a = 1"))
	esm.BuildMeta.ESM = true
	cjs := graph.NewModule("./cjs.js", []byte("module.exports = 1"))
	for _, m := range []*graph.Module{esm, cjs} {
		if err := g.Add(m); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := g.AddDependency("./esm.js", syncDep("./cjs.js")); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	if err := g.AddDependency("./cjs.js", asyncDep("./esm.js")); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	g.Freeze()

	esmReqs := ModuleRequirements(g, esm)
	for _, want := range []Requirement{ReqMakeNamespace, ReqDefineExports, ReqCompatDefault} {
		if !esmReqs.Has(want) {
			t.Errorf("esm module should require %s, got %v", want, esmReqs.Sorted())
		}
	}
	if esmReqs.Has(ReqEnsureChunk) {
		t.Error("esm module has no async edge, should not require ensure-chunk")
	}

	cjsReqs := ModuleRequirements(g, cjs)
	if !cjsReqs.Has(ReqEnsureChunk) {
		t.Errorf("async edge should require ensure-chunk, got %v", cjsReqs.Sorted())
	}
	if cjsReqs.Has(ReqMakeNamespace) {
		t.Error("plain module should not require make-namespace")
	}
}

func TestModuleRequirementsExternalInterop(t *testing.T) {
	g := graph.NewModuleGraph()
	esm := graph.NewModule("./app.js", []byte("import React from 'react'"))
	esm.BuildMeta.ESM = true
	if err := g.Add(esm); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	err := g.AddDependency("./app.js", graph.Dependency{
		Request:  "react",
		External: &graph.ExternalRef{Name: "React", Kind: "global"},
		Kind:     graph.KindSync,
	})
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	g.Freeze()

	reqs := ModuleRequirements(g, esm)
	if !reqs.Has(ReqCompatDefault) {
		t.Errorf("external import from esm should require compat-default, got %v", reqs.Sorted())
	}
}

func TestExpandClosure(t *testing.T) {
	web := NewSet(ReqEnsureChunk)
	expand(web, target.Web.Capabilities())
	for _, want := range []Requirement{ReqChunkLoading, ReqChunkFilename, ReqHasOwn, ReqLoadScript, ReqPublicPath} {
		if !web.Has(want) {
			t.Errorf("web closure of ensure-chunk missing %s: %v", want, web.Sorted())
		}
	}

	node := NewSet(ReqEnsureChunk)
	expand(node, target.Node.Capabilities())
	if node.Has(ReqLoadScript) || node.Has(ReqPublicPath) {
		t.Errorf("node closure should not pull script loading: %v", node.Sorted())
	}
	if !node.Has(ReqChunkFilename) {
		t.Errorf("node closure missing chunk-filename: %v", node.Sorted())
	}
}

func TestEntryRequirementsSpanReachableChunks(t *testing.T) {
	g, cg, _ := buildBundle(t, []moduleSpec{
		{id: "./main.js", deps: []graph.Dependency{syncDep("./a.js")}},
		{id: "./a.js", deps: []graph.Dependency{asyncDep("./b.js")}},
		// The nested async boundary sits in a lazy chunk, not the entry.
		{id: "./b.js", deps: []graph.Dependency{asyncDep("./c.js")}},
		{id: "./c.js", esm: true},
	}, []split.Entry{{Name: "main", Module: "./main.js"}})

	a := NewAssembler(target.Web, Options{})
	entry := cg.EntryGroups()[0]
	reqs := a.EntryRequirements(g, entry)

	if !reqs.Has(ReqEnsureChunk) {
		t.Errorf("missing ensure-chunk: %v", reqs.Sorted())
	}
	// c.js is two async hops away; its namespace needs still count.
	if !reqs.Has(ReqMakeNamespace) {
		t.Errorf("missing make-namespace from nested chunk: %v", reqs.Sorted())
	}
	if !reqs.Has(ReqRequire) {
		t.Errorf("missing require: %v", reqs.Sorted())
	}
}

func TestAssembleInlineSharesInstances(t *testing.T) {
	g, cg, _ := buildBundle(t, []moduleSpec{
		{id: "./main.js", deps: []graph.Dependency{asyncDep("./lazy.js")}},
		{id: "./admin.js", deps: []graph.Dependency{asyncDep("./lazy.js")}},
		{id: "./lazy.js"},
	}, []split.Entry{
		{Name: "main", Module: "./main.js"},
		{Name: "admin", Module: "./admin.js"},
	})
	assign := assignIDs(t, g, cg, []graph.Identity{"./main.js", "./admin.js"})

	plan, err := NewAssembler(target.Web, Options{}).Assemble(g, cg, assign)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if plan.RuntimeChunk != nil {
		t.Error("no runtime chunk was configured")
	}

	mainMods := plan.Modules("main")
	adminMods := plan.Modules("admin")
	if len(mainMods) == 0 || len(adminMods) == 0 {
		t.Fatalf("entry chunks missing runtime modules: main=%d admin=%d", len(mainMods), len(adminMods))
	}
	if mainMods[0].Requirement != ReqRequire {
		t.Errorf("first runtime module is %s, want %s", mainMods[0].Requirement, ReqRequire)
	}
	if last := mainMods[len(mainMods)-1]; last.Requirement != ReqChunkLoading {
		t.Errorf("last runtime module is %s, want %s", last.Requirement, ReqChunkLoading)
	}
	// Both entries need the same requirements and share the instances.
	if len(mainMods) != len(adminMods) {
		t.Fatalf("entries disagree on runtime size: %d vs %d", len(mainMods), len(adminMods))
	}
	for i := range mainMods {
		if mainMods[i] != adminMods[i] {
			t.Errorf("runtime module %s not shared between entries", mainMods[i].Requirement)
		}
	}
}

func TestAssembleExtractedRuntime(t *testing.T) {
	g, cg, _ := buildBundle(t, []moduleSpec{
		{id: "./main.js", deps: []graph.Dependency{asyncDep("./lazy.js")}},
		{id: "./lazy.js"},
	}, []split.Entry{{Name: "main", Module: "./main.js"}})

	a := NewAssembler(target.Web, Options{ExtractRuntime: "runtime"})
	rc := a.ExtractRuntime(cg)
	if rc == nil || !rc.Runtime {
		t.Fatal("expected a runtime chunk")
	}
	entry := cg.EntryGroups()[0]
	if entry.Chunks[0] != rc {
		t.Error("runtime chunk should load first in the entry group")
	}

	assign := assignIDs(t, g, cg, []graph.Identity{"./main.js"})
	plan, err := a.Assemble(g, cg, assign)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if plan.RuntimeChunk != rc {
		t.Error("plan should reference the runtime chunk")
	}
	if len(plan.Modules(rc.Key())) == 0 {
		t.Error("runtime chunk carries no runtime modules")
	}
	if len(plan.Modules("main")) != 0 {
		t.Error("entry chunk should carry no runtime modules when extracted")
	}
}

func TestAssembleWithoutAsyncStaysMinimal(t *testing.T) {
	g, cg, _ := buildBundle(t, []moduleSpec{
		{id: "./main.js", deps: []graph.Dependency{syncDep("./a.js")}},
		{id: "./a.js"},
	}, []split.Entry{{Name: "main", Module: "./main.js"}})
	assign := assignIDs(t, g, cg, []graph.Identity{"./main.js"})

	plan, err := NewAssembler(target.Web, Options{}).Assemble(g, cg, assign)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	mods := plan.Modules("main")
	if len(mods) != 1 || mods[0].Requirement != ReqRequire {
		names := make([]string, len(mods))
		for i, m := range mods {
			names[i] = string(m.Requirement)
		}
		t.Errorf("sync-only bundle should carry only the dispatcher, got %v", names)
	}
}

func TestRuntimeTemplatesGolden(t *testing.T) {
	data := &templateData{
		GlobalObject:    "self",
		GlobalVar:       "webpackChunk",
		PublicPath:      "/assets/",
		LoadTimeout:     120000,
		InstalledChunks: `{"main": 0}`,
		FilenameExpr:    `"" + chunkId + ".js"`,
	}
	tests := []struct {
		template string
		golden   string
	}{
		{template: "require.js.tmpl", golden: "require.golden.js"},
		{template: "public_path.js.tmpl", golden: "public_path.golden.js"},
		{template: "chunk_filename.js.tmpl", golden: "chunk_filename.golden.js"},
		{template: "load_script.js.tmpl", golden: "load_script.golden.js"},
		{template: "jsonp_chunk.js.tmpl", golden: "jsonp_chunk.golden.js"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, err := renderTemplate(tt.template, data)
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			want, err := os.ReadFile(filepath.Join("testdata", tt.golden))
			if err != nil {
				t.Fatalf("reading golden: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("rendered output differs from %s:\n--- got ---\n%s\n--- want ---\n%s", tt.golden, got, want)
			}
		})
	}
}

func TestChunkLoadingTemplatePerTarget(t *testing.T) {
	tests := []struct {
		target   target.Target
		contains string
	}{
		{target: target.Web, contains: "__webpack_require__.f.j"},
		{target: target.Node, contains: "__webpack_require__.f.require"},
		{target: target.Host, contains: "__webpack_require__.f.hook"},
	}
	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			name, ok := templateFor(ReqChunkLoading, tt.target.Capabilities())
			if !ok {
				t.Fatal("no template resolved")
			}
			got, err := renderTemplate(name, &templateData{
				GlobalObject:    tt.target.Capabilities().GlobalObject,
				GlobalVar:       "webpackChunk",
				InstalledChunks: "{}",
				FilenameExpr:    `"" + chunkId + ".js"`,
			})
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if !strings.Contains(string(got), tt.contains) {
				t.Errorf("template %s missing %q", name, tt.contains)
			}
		})
	}
}

func TestFilenameExprWithMap(t *testing.T) {
	expr, err := filenameExpr(map[string]string{"1": "lazy.abc123.js", "0": "main.js"})
	if err != nil {
		t.Fatalf("filenameExpr failed: %v", err)
	}
	want := `({"0": "main.js","1": "lazy.abc123.js"})[chunkId]`
	if expr != want {
		t.Errorf("got %q, want %q", expr, want)
	}
}

func TestInstalledChunksLiteral(t *testing.T) {
	g, cg, _ := buildBundle(t, []moduleSpec{
		{id: "./main.js", deps: []graph.Dependency{asyncDep("./lazy.js")}},
		{id: "./lazy.js"},
	}, []split.Entry{{Name: "main", Module: "./main.js"}})
	assign := assignIDs(t, g, cg, []graph.Identity{"./main.js"})

	got, err := installedChunksLiteral(cg, assign)
	if err != nil {
		t.Fatalf("installedChunksLiteral failed: %v", err)
	}
	// Only the initial chunk is pre-loaded; the async chunk is absent.
	if got != `{"0": 0}` {
		t.Errorf("got %s, want %s", got, `{"0": 0}`)
	}
}
