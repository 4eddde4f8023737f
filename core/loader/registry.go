// Package loader is the host-process rendition of the chunk loading
// runtime: a module registry, the chunk state machine, and the on-demand
// loader the emitted bundles implement in script form.
//
// Chunk states move unrequested -> loading -> loaded. A failed load
// notifies its waiters and resets the chunk to unrequested so a later
// request retries. Completion callbacks never run on the caller's stack:
// they go through a single dispatch goroutine that drains in FIFO order,
// which is also what makes the waiter ordering guarantees testable.
package loader

import (
	"sync"
	"time"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// ModuleID keys the module table, matching the emitted id strategy.
type ModuleID = string

// ChunkID keys the chunk state table.
type ChunkID = string

// Exports is a module's export object.
type Exports map[string]any

// RequireFunc resolves a module id to its exports.
type RequireFunc func(id ModuleID) (Exports, error)

// Factory instantiates one module. It populates module.Exports and may
// require other modules; during a dependency cycle it can observe a
// partially populated exports object, same as the script runtime.
type Factory func(module *Module, require RequireFunc) error

// RuntimeInjector is the runtime fragment a chunk payload carries. It runs
// after the payload's modules are merged and before pending requesters are
// resolved.
type RuntimeInjector func(reg *Registry)

// Module is one instantiated module.
type Module struct {
	ID      ModuleID
	Exports Exports
	// Loaded flips once the factory has returned.
	Loaded bool
}

// ChunkState is the sentinel state of a chunk.
type ChunkState int

const (
	// ChunkUnrequested means no request was made yet, or the last one
	// failed and was reset.
	ChunkUnrequested ChunkState = iota
	// ChunkPlaceholder marks a prefetched or preloaded chunk: warm but not
	// installed.
	ChunkPlaceholder
	// ChunkLoading means exactly one fetch is in flight.
	ChunkLoading
	// ChunkLoaded means the chunk's modules are installed.
	ChunkLoaded
)

func (s ChunkState) String() string {
	switch s {
	case ChunkPlaceholder:
		return "placeholder"
	case ChunkLoading:
		return "loading"
	case ChunkLoaded:
		return "loaded"
	default:
		return "unrequested"
	}
}

type chunkEntry struct {
	state   ChunkState
	epoch   uint64
	waiters []func(error)
	timer   *time.Timer
	cancel  func()
}

// Registry holds the module table and chunk states of one running bundle.
// Register and Ensure are safe for concurrent use; Require is meant to run
// on a single execution stream, normally the dispatch goroutine the
// completion callbacks already run on.
type Registry struct {
	mu        sync.Mutex
	factories map[ModuleID]Factory
	cache     map[ModuleID]*Module
	chunks    map[ChunkID]*chunkEntry
	epochSeq  uint64

	tasks *dispatchQueue
}

// NewRegistry creates a registry and starts its dispatch goroutine.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[ModuleID]Factory),
		cache:     make(map[ModuleID]*Module),
		chunks:    make(map[ChunkID]*chunkEntry),
		tasks:     newDispatchQueue(),
	}
}

// Close drains outstanding callbacks and stops the dispatch goroutine.
func (r *Registry) Close() {
	r.tasks.close()
}

func (r *Registry) enqueue(fn func()) {
	r.tasks.enqueue(fn)
}

// Register installs a chunk payload: the wire contract the emitted chunks
// call. Modules merge first, the named chunks flip to loaded, the runtime
// fragment runs, and only then are pending requesters resolved in the
// order they asked. Registering an already loaded chunk again is ignored.
func (r *Registry) Register(chunkIDs []ChunkID, modules map[ModuleID]Factory, runtime RuntimeInjector) {
	r.mu.Lock()
	anyNew := false
	for _, id := range chunkIDs {
		st := r.chunks[id]
		if st == nil || st.state != ChunkLoaded {
			anyNew = true
			break
		}
	}
	if anyNew {
		for id, f := range modules {
			r.factories[id] = f
		}
	}

	var waiters []func(error)
	for _, id := range chunkIDs {
		st := r.chunks[id]
		if st != nil {
			if st.state == ChunkLoaded {
				continue
			}
			if st.timer != nil {
				st.timer.Stop()
			}
			if st.cancel != nil {
				st.cancel()
			}
			waiters = append(waiters, st.waiters...)
		}
		r.chunks[id] = &chunkEntry{state: ChunkLoaded}
	}
	r.mu.Unlock()

	if anyNew && runtime != nil {
		runtime(r)
	}
	for _, w := range waiters {
		w := w
		r.enqueue(func() { w(nil) })
	}
}

// MarkPlaceholder records a prefetch or preload marker for a chunk that
// has not been requested. Loading and loaded chunks keep their state.
func (r *Registry) MarkPlaceholder(chunkID ChunkID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chunks[chunkID] == nil {
		r.chunks[chunkID] = &chunkEntry{state: ChunkPlaceholder}
	}
}

// State reports the sentinel state of a chunk.
func (r *Registry) State(chunkID ChunkID) ChunkState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.chunks[chunkID]; st != nil {
		return st.state
	}
	return ChunkUnrequested
}

// HasModule reports whether a factory for the module is installed.
func (r *Registry) HasModule(id ModuleID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[id]
	return ok
}

// Require instantiates a module, or returns the cached instance. The cache
// entry is published before the factory runs, so factories requiring each
// other in a cycle see partial exports instead of recursing forever. A
// factory error evicts the entry, letting a later Require retry.
func (r *Registry) Require(id ModuleID) (Exports, error) {
	r.mu.Lock()
	if m, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return m.Exports, nil
	}
	f, ok := r.factories[id]
	if !ok {
		r.mu.Unlock()
		return nil, werrors.Wrapf(werrors.ErrNotFound, "module %s", id)
	}
	m := &Module{ID: id, Exports: make(Exports)}
	r.cache[id] = m
	r.mu.Unlock()

	if err := f(m, r.Require); err != nil {
		r.mu.Lock()
		delete(r.cache, id)
		r.mu.Unlock()
		return nil, werrors.Wrapf(err, "instantiating module %s", id)
	}
	m.Loaded = true
	return m.Exports, nil
}

// dispatchQueue runs callbacks one at a time on its own goroutine, in the
// order they were enqueued.
type dispatchQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	wg     sync.WaitGroup
}

func newDispatchQueue() *dispatchQueue {
	q := &dispatchQueue{}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.drain()
	return q
}

func (q *dispatchQueue) enqueue(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
}

func (q *dispatchQueue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		fn()
	}
}

func (q *dispatchQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	q.wg.Wait()
}
