package devserver

import (
	"context"
	"os"
	"sort"
	"time"
)

// Watcher polls a set of files for modification-time changes. The file
// set is re-read on every poll so the caller can grow or shrink it as
// the module graph changes between rebuilds.
type Watcher struct {
	paths  func() []string
	mtimes map[string]time.Time
}

// NewWatcher creates a watcher over the files the paths callback returns.
func NewWatcher(paths func() []string) *Watcher {
	return &Watcher{
		paths:  paths,
		mtimes: make(map[string]time.Time),
	}
}

// Prime records the current state of every watched file so the next
// Changed call reports only edits made after this point.
func (w *Watcher) Prime() {
	for _, p := range w.paths() {
		if info, err := os.Stat(p); err == nil {
			w.mtimes[p] = info.ModTime()
		}
	}
}

// Changed returns the watched paths whose files were modified or removed
// since the previous call, sorted. Files seen for the first time are
// recorded silently; the build that introduced them already read their
// content.
func (w *Watcher) Changed() []string {
	var changed []string
	seen := make(map[string]bool)

	for _, p := range w.paths() {
		seen[p] = true
		info, err := os.Stat(p)
		if err != nil {
			if _, had := w.mtimes[p]; had {
				changed = append(changed, p)
				delete(w.mtimes, p)
			}
			continue
		}
		prev, had := w.mtimes[p]
		if had && !info.ModTime().Equal(prev) {
			changed = append(changed, p)
		}
		w.mtimes[p] = info.ModTime()
	}

	// Forget files no longer on the watch list.
	for p := range w.mtimes {
		if !seen[p] {
			delete(w.mtimes, p)
		}
	}

	sort.Strings(changed)
	return changed
}

// Run polls at the given interval until the context is cancelled, calling
// onChange with each non-empty change set.
func (w *Watcher) Run(ctx context.Context, interval time.Duration, onChange func(changed []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if changed := w.Changed(); len(changed) > 0 {
				onChange(changed)
			}
		}
	}
}
