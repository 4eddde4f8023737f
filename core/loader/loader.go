package loader

import (
	"context"
	"time"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// DefaultTimeout bounds a chunk load the same way the script runtime does.
const DefaultTimeout = 120000 * time.Millisecond

// FetchFunc is the transport. It delivers a chunk by arranging for
// Registry.Register to be called (evaluating a chunk file does that) and
// returns once delivery finished or failed. Returning nil without the
// chunk having registered means the payload was missing.
type FetchFunc func(ctx context.Context, chunkID ChunkID) error

// Options configure a Loader.
type Options struct {
	// Timeout bounds one load attempt. Zero means DefaultTimeout; negative
	// disables the timer.
	Timeout time.Duration
}

// Loader drives on-demand chunk loading over a registry: one fetch per
// chunk no matter how many concurrent requesters, FIFO waiter resolution,
// timeout and retry semantics.
type Loader struct {
	reg     *Registry
	fetch   FetchFunc
	timeout time.Duration
}

// NewLoader creates a loader over a registry and transport.
func NewLoader(reg *Registry, fetch FetchFunc, opts Options) *Loader {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Loader{reg: reg, fetch: fetch, timeout: timeout}
}

// Registry returns the registry the loader installs chunks into.
func (l *Loader) Registry() *Registry {
	return l.reg
}

// Ensure requests a chunk. The callback fires exactly once on the dispatch
// goroutine: with nil once the chunk is loaded, or with a ChunkLoadError.
// Requesting a loaded chunk succeeds without a fetch; requesting a loading
// chunk joins the pending queue; a failed load resets the chunk so the
// next Ensure starts over.
func (l *Loader) Ensure(ctx context.Context, chunkID ChunkID, cb func(error)) {
	r := l.reg
	r.mu.Lock()
	st := r.chunks[chunkID]
	if st != nil {
		switch st.state {
		case ChunkLoaded:
			r.mu.Unlock()
			r.enqueue(func() { cb(nil) })
			return
		case ChunkLoading:
			st.waiters = append(st.waiters, cb)
			r.mu.Unlock()
			return
		}
	}

	// Unrequested or placeholder: this caller starts the one fetch.
	r.epochSeq++
	epoch := r.epochSeq
	fctx, cancel := context.WithCancel(ctx)
	st = &chunkEntry{
		state:   ChunkLoading,
		epoch:   epoch,
		waiters: []func(error){cb},
		cancel:  cancel,
	}
	if l.timeout > 0 {
		st.timer = time.AfterFunc(l.timeout, func() {
			l.fail(chunkID, epoch, werrors.NewChunkLoad(werrors.LoadTimeout, chunkID, "", nil))
		})
	}
	r.chunks[chunkID] = st
	r.mu.Unlock()

	go func() {
		err := l.fetch(fctx, chunkID)
		if err != nil {
			l.fail(chunkID, epoch, werrors.NewChunkLoad(werrors.LoadFailed, chunkID, "", err))
			return
		}
		// The transport finished; a chunk that still has not registered
		// carried no usable payload.
		r.mu.Lock()
		cur := r.chunks[chunkID]
		missing := cur != nil && cur.epoch == epoch && cur.state == ChunkLoading
		r.mu.Unlock()
		if missing {
			l.fail(chunkID, epoch, werrors.NewChunkLoad(werrors.LoadMissing, chunkID, "", nil))
		}
	}()
}

// fail completes one load attempt with an error. The epoch guard drops
// late events: a timeout firing after the chunk registered, or a fetch
// error arriving after a reset, must not touch newer state.
func (l *Loader) fail(chunkID ChunkID, epoch uint64, cerr error) {
	r := l.reg
	r.mu.Lock()
	st := r.chunks[chunkID]
	if st == nil || st.epoch != epoch || st.state != ChunkLoading {
		r.mu.Unlock()
		return
	}
	waiters := st.waiters
	if st.timer != nil {
		st.timer.Stop()
	}
	if st.cancel != nil {
		st.cancel()
	}
	delete(r.chunks, chunkID)
	r.mu.Unlock()

	for _, w := range waiters {
		w := w
		r.enqueue(func() { w(cerr) })
	}
}
