package chunk

import (
	"reflect"
	"testing"

	"github.com/ThatTomPerson/webpack/core/graph"
)

func TestChunkKey(t *testing.T) {
	tests := []struct {
		name  string
		chunk *Chunk
		want  string
	}{
		{
			name:  "named chunk uses name",
			chunk: NewChunk("main", true, "./src/index.js"),
			want:  "main",
		},
		{
			name:  "anonymous chunk joins sorted roots",
			chunk: NewChunk("", false, "./src/z.js", "./src/a.js"),
			want:  "./src/a.js|./src/z.js",
		},
		{
			name:  "single root",
			chunk: NewChunk("", false, "./src/lazy.js"),
			want:  "./src/lazy.js",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddModuleAndReverseIndex(t *testing.T) {
	g := NewGraph()
	main := NewChunk("main", true, "./a.js")
	lazy := NewChunk("", false, "./c.js")
	g.AddChunk(main)
	g.AddChunk(lazy)

	g.AddModule(main, "./a.js")
	g.AddModule(main, "./shared.js")
	g.AddModule(lazy, "./c.js")
	g.AddModule(lazy, "./shared.js")
	// Duplicate placement is a no-op.
	g.AddModule(main, "./a.js")

	if main.Len() != 2 {
		t.Errorf("main.Len() = %d, want 2", main.Len())
	}
	if !main.Has("./shared.js") || !lazy.Has("./shared.js") {
		t.Error("shared module missing from one of its owners")
	}

	owners := g.ChunksOf("./shared.js")
	if len(owners) != 2 || owners[0] != main || owners[1] != lazy {
		t.Errorf("ChunksOf(shared) = %v, want [main lazy]", owners)
	}
	if got := g.ChunksOf("./unplaced.js"); got != nil {
		t.Errorf("ChunksOf(unplaced) = %v, want nil", got)
	}
	if g.ModuleCount() != 3 {
		t.Errorf("ModuleCount() = %d, want 3", g.ModuleCount())
	}

	want := []graph.Identity{"./a.js", "./c.js", "./shared.js"}
	if got := g.Modules(); !reflect.DeepEqual(got, want) {
		t.Errorf("Modules() = %v, want %v", got, want)
	}
}

func TestRemoveModule(t *testing.T) {
	g := NewGraph()
	c := NewChunk("main", true, "./a.js")
	g.AddChunk(c)
	g.AddModule(c, "./a.js")
	g.AddModule(c, "./b.js")

	g.RemoveModule(c, "./b.js")
	if c.Has("./b.js") {
		t.Error("module still present after RemoveModule")
	}
	if got := g.ChunksOf("./b.js"); got != nil {
		t.Errorf("reverse index still lists removed module: %v", got)
	}
	// Removing an absent module is a no-op.
	g.RemoveModule(c, "./b.js")
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestGroupOrderAndRelations(t *testing.T) {
	g := NewGraph()
	entry := NewGroup("main", true)
	lazyGroup := NewGroup("", false)
	g.AddGroup(entry)
	g.AddGroup(lazyGroup)
	g.Connect(entry, lazyGroup)
	// Repeat connections do not duplicate relations.
	g.Connect(entry, lazyGroup)

	if len(entry.Children()) != 1 || entry.Children()[0] != lazyGroup {
		t.Errorf("entry.Children() = %v, want [lazyGroup]", entry.Children())
	}
	if len(lazyGroup.Parents()) != 1 || lazyGroup.Parents()[0] != entry {
		t.Errorf("lazyGroup.Parents() = %v, want [entry]", lazyGroup.Parents())
	}

	entries := g.EntryGroups()
	if len(entries) != 1 || entries[0] != entry {
		t.Errorf("EntryGroups() = %v, want [entry]", entries)
	}
}

func TestGroupAddChunkOrderedAndDeduplicated(t *testing.T) {
	gr := NewGroup("main", true)
	runtime := NewChunk("runtime", true)
	runtime.Runtime = true
	main := NewChunk("main", true, "./a.js")

	gr.AddChunk(runtime)
	gr.AddChunk(main)
	gr.AddChunk(main)

	if len(gr.Chunks) != 2 {
		t.Fatalf("group has %d chunks, want 2", len(gr.Chunks))
	}
	if gr.Chunks[0] != runtime || gr.Chunks[1] != main {
		t.Error("loading order should keep ancestors first")
	}
	if len(main.Groups()) != 1 || main.Groups()[0] != gr {
		t.Errorf("chunk back-reference wrong: %v", main.Groups())
	}
}

func TestGroupPrependChunk(t *testing.T) {
	gr := NewGroup("main", true)
	main := NewChunk("main", true, "./a.js")
	runtime := NewChunk("runtime", true)
	runtime.Runtime = true

	gr.AddChunk(main)
	gr.PrependChunk(runtime)
	gr.PrependChunk(runtime)

	if len(gr.Chunks) != 2 {
		t.Fatalf("group has %d chunks, want 2", len(gr.Chunks))
	}
	if gr.Chunks[0] != runtime || gr.Chunks[1] != main {
		t.Error("prepended chunk should load first")
	}
	if len(runtime.Groups()) != 1 || runtime.Groups()[0] != gr {
		t.Errorf("chunk back-reference wrong: %v", runtime.Groups())
	}
}

func TestRemoveChunk(t *testing.T) {
	g := NewGraph()
	gr := NewGroup("main", true)
	g.AddGroup(gr)

	keep := NewChunk("main", true, "./a.js")
	empty := NewChunk("", false, "./gone.js")
	g.AddChunk(keep)
	g.AddChunk(empty)
	gr.AddChunk(keep)
	gr.AddChunk(empty)
	g.AddModule(keep, "./a.js")
	g.AddModule(empty, "./gone.js")

	g.RemoveChunk(empty)

	if len(g.Chunks()) != 1 || g.Chunks()[0] != keep {
		t.Errorf("Chunks() = %v, want [keep]", g.Chunks())
	}
	if len(gr.Chunks) != 1 || gr.Chunks[0] != keep {
		t.Errorf("group chunks = %v, want [keep]", gr.Chunks)
	}
	if got := g.ChunksOf("./gone.js"); got != nil {
		t.Errorf("reverse index still lists removed chunk's module: %v", got)
	}
}

func TestChunkModulesSorted(t *testing.T) {
	g := NewGraph()
	c := NewChunk("main", true)
	g.AddChunk(c)
	for _, id := range []graph.Identity{"./z.js", "./a.js", "./m.js"} {
		g.AddModule(c, id)
	}
	want := []graph.Identity{"./a.js", "./m.js", "./z.js"}
	if got := c.Modules(); !reflect.DeepEqual(got, want) {
		t.Errorf("Modules() = %v, want %v", got, want)
	}
}
