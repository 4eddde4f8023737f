package loader

import (
	"context"
	"sync"
)

// Bundle defers one module behind its chunk, the way a bundle-wrapped
// import surfaces in application code. Callbacks registered before the
// chunk arrives are buffered and fired in registration order when it does;
// callbacks registered after completion fire on the next dispatch turn,
// never synchronously inside Load.
type Bundle struct {
	loader   *Loader
	chunkID  ChunkID
	moduleID ModuleID

	mu        sync.Mutex
	requested bool
	done      bool
	exports   Exports
	pending   []func(Exports, error)
}

// NewBundle creates a bundle handle for a module living in a chunk.
func NewBundle(l *Loader, chunkID ChunkID, moduleID ModuleID) *Bundle {
	return &Bundle{loader: l, chunkID: chunkID, moduleID: moduleID}
}

// Load requests the bundle and hands the module's exports to cb. The first
// call triggers the chunk load; further calls before completion just queue.
// A failed load reports the error to every queued callback and rearms the
// bundle, so a later Load retries.
func (b *Bundle) Load(ctx context.Context, cb func(Exports, error)) {
	b.mu.Lock()
	if b.done {
		exports := b.exports
		b.mu.Unlock()
		b.loader.reg.enqueue(func() { cb(exports, nil) })
		return
	}
	b.pending = append(b.pending, cb)
	if b.requested {
		b.mu.Unlock()
		return
	}
	b.requested = true
	b.mu.Unlock()

	b.loader.Ensure(ctx, b.chunkID, func(err error) { b.complete(err) })
}

// complete runs on the dispatch goroutine and drains the buffered
// callbacks in order.
func (b *Bundle) complete(err error) {
	var exports Exports
	if err == nil {
		exports, err = b.loader.reg.Require(b.moduleID)
	}

	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	if err == nil {
		b.done = true
		b.exports = exports
	} else {
		b.requested = false
	}
	b.mu.Unlock()

	for _, cb := range pending {
		cb(exports, err)
	}
}
