package emit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThatTomPerson/webpack/core/runtime"
	"github.com/ThatTomPerson/webpack/core/target"
)

func TestEmitWritesAllChunks(t *testing.T) {
	b := buildBundle(t, target.Web, webSpecs(), mainEntry(), "")
	dir := t.TempDir()
	e := NewEmitter(target.Web, Options{Dir: dir})

	report, err := e.Emit(b.graph, b.chunks, b.assign, b.plan, b.hashes)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if len(report.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(report.Assets))
	}

	for _, name := range []string{"main.js", "1.js"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing asset %s: %v", name, err)
		}
	}
}

func TestEmitSourceMaps(t *testing.T) {
	b := buildBundle(t, target.Web, webSpecs(), mainEntry(), "")
	dir := t.TempDir()
	e := NewEmitter(target.Web, Options{Dir: dir, SourceMap: true})

	report, err := e.Emit(b.graph, b.chunks, b.assign, b.plan, b.hashes)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if len(report.Assets) != 4 {
		t.Fatalf("expected 2 chunks + 2 maps, got %d assets", len(report.Assets))
	}

	src, err := ReadAsset(dir, "main.js")
	if err != nil {
		t.Fatalf("ReadAsset failed: %v", err)
	}
	if !strings.HasSuffix(string(src), "//# sourceMappingURL=main.js.map\n") {
		t.Error("chunk asset missing sourceMappingURL footer")
	}

	raw, err := ReadAsset(dir, "main.js.map")
	if err != nil {
		t.Fatalf("reading map failed: %v", err)
	}
	var sm runtime.SourceMap
	if err := json.Unmarshal(raw, &sm); err != nil {
		t.Fatalf("map is not valid JSON: %v", err)
	}
	if sm.Version != 3 {
		t.Errorf("map version = %d, want 3", sm.Version)
	}
	if sm.File != "main.js" {
		t.Errorf("map file = %q, want main.js", sm.File)
	}
	if len(sm.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", sm.Sources)
	}
	for _, s := range sm.Sources {
		if !strings.HasPrefix(s, "webpack://") {
			t.Errorf("source %q missing webpack:// scheme", s)
		}
	}
	if len(sm.SourcesContent) != 2 || !strings.Contains(sm.SourcesContent[0], "body of") {
		t.Errorf("sourcesContent not carried: %v", sm.SourcesContent)
	}
}

func TestEmitSourceMapURLTemplate(t *testing.T) {
	b := buildBundle(t, target.Web, webSpecs(), mainEntry(), "")
	dir := t.TempDir()
	e := NewEmitter(target.Web, Options{Dir: dir, SourceMap: true, SourceMapURL: "https://maps.example.com/[url]"})

	if _, err := e.Emit(b.graph, b.chunks, b.assign, b.plan, b.hashes); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	src, err := ReadAsset(dir, "main.js")
	if err != nil {
		t.Fatalf("ReadAsset failed: %v", err)
	}
	if !strings.Contains(string(src), "//# sourceMappingURL=https://maps.example.com/main.js.map") {
		t.Error("footer did not expand the url template")
	}
}

func TestEmitHashedFilenamesFeedRuntime(t *testing.T) {
	b := buildBundle(t, target.Web, webSpecs(), mainEntry(), "")
	dir := t.TempDir()
	opts := Options{Dir: dir, ChunkFilename: "[id].[contenthash:8].js"}

	// The compile pipeline hands the expanded filename table to the
	// runtime assembler before emitting.
	r := NewRenderer(target.Web, opts)
	names, err := r.Filenames(b.chunks, b.assign, b.hashes)
	if err != nil {
		t.Fatalf("Filenames failed: %v", err)
	}
	asm := runtime.NewAssembler(target.Web, runtime.Options{Filenames: names})
	plan, err := asm.Assemble(b.graph, b.chunks, b.assign)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	e := NewEmitter(target.Web, opts)
	report, err := e.Emit(b.graph, b.chunks, b.assign, plan, b.hashes)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	var entry string
	for _, a := range report.Assets {
		if a.Chunk != nil && a.Chunk.Name == "main" {
			entry = string(a.Source)
		}
	}
	lazy := asyncChunk(t, b.chunks)
	want := `"1": "1.` + b.hashes.Content[lazy.Key()][:8] + `.js"`
	if !strings.Contains(entry, want) {
		t.Errorf("runtime filename table missing %s", want)
	}
}

func TestBuildStats(t *testing.T) {
	b := buildBundle(t, target.Web, webSpecs(), mainEntry(), "")
	dir := t.TempDir()
	e := NewEmitter(target.Web, Options{Dir: dir})

	report, err := e.Emit(b.graph, b.chunks, b.assign, b.plan, b.hashes)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	stats := BuildStats(b.graph, b.chunks, b.assign, b.hashes, report, 42*time.Millisecond)
	if stats.BuildID == "" {
		t.Error("stats missing build id")
	}
	if stats.Time != 42 {
		t.Errorf("stats time = %d, want 42", stats.Time)
	}
	if stats.Hash != b.hashes.Build {
		t.Errorf("stats hash = %q, want %q", stats.Hash, b.hashes.Build)
	}
	if len(stats.Assets) != 2 || len(stats.Chunks) != 2 || len(stats.Modules) != 3 {
		t.Fatalf("stats counts = %d assets, %d chunks, %d modules", len(stats.Assets), len(stats.Chunks), len(stats.Modules))
	}

	files, ok := stats.Entries["main"]
	if !ok || len(files) != 1 || files[0] != "main.js" {
		t.Errorf("entrypoint files = %v, want [main.js]", files)
	}

	var mainModule *ModuleStats
	for i := range stats.Modules {
		if stats.Modules[i].Name == "./src/main.js" {
			mainModule = &stats.Modules[i]
		}
	}
	if mainModule == nil {
		t.Fatal("stats missing entry module")
	}
	if mainModule.ID != "0" || len(mainModule.Chunks) != 1 {
		t.Errorf("entry module stats = %+v", mainModule)
	}
	if mainModule.Hash == "" || len(mainModule.Hash) > hashLen {
		t.Errorf("module hash = %q", mainModule.Hash)
	}

	var buf strings.Builder
	if err := stats.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &decoded); err != nil {
		t.Fatalf("stats did not round-trip: %v", err)
	}
	if _, ok := decoded["entrypoints"]; !ok {
		t.Error("encoded stats missing entrypoints")
	}
}

func TestStatsDeterministicApartFromBuildID(t *testing.T) {
	render := func() *Stats {
		b := buildBundle(t, target.Web, webSpecs(), mainEntry(), "")
		e := NewEmitter(target.Web, Options{Dir: t.TempDir()})
		report, err := e.Emit(b.graph, b.chunks, b.assign, b.plan, b.hashes)
		if err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
		return BuildStats(b.graph, b.chunks, b.assign, b.hashes, report, time.Millisecond)
	}

	a, b := render(), render()
	if a.BuildID == b.BuildID {
		t.Error("build ids should differ between builds")
	}
	a.BuildID, b.BuildID = "", ""
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Errorf("stats differ between identical builds:\n%s\n%s", aj, bj)
	}
}
