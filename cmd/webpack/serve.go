package main

import (
	"context"
	"sync"
	"time"

	"github.com/ThatTomPerson/webpack/core/compile"
	"github.com/ThatTomPerson/webpack/internal/devserver"
	"github.com/ThatTomPerson/webpack/internal/logging"
	"github.com/ThatTomPerson/webpack/internal/resolve"
)

// ServeCmd builds, serves the output directory, and rebuilds when a
// module file changes. Connected browsers reload through the websocket
// hub.
type ServeCmd struct {
	Port int           `help:"HTTP server port" default:"8080"`
	Poll time.Duration `help:"Change detection poll interval" default:"250ms"`
}

func (c *ServeCmd) Run() error {
	settings, err := loadSettings(CLI.Config)
	if err != nil {
		return err
	}
	factory, closeCache, err := newFactory(settings)
	if err != nil {
		return err
	}
	defer closeCache()

	compiler := compile.New(settings.Compile, factory)
	server := devserver.New(devserver.Config{
		Port:       c.Port,
		Dir:        settings.Compile.Output.Dir,
		PublicPath: settings.Compile.PublicPath,
	})
	defer server.Close()

	loop := &serveLoop{compiler: compiler, server: server}
	loop.rebuild()

	watcher := devserver.NewWatcher(loop.watchedFiles)
	watcher.Prime()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx, c.Poll, func(changed []string) {
		logging.Info("change detected", "files", len(changed), "first", changed[0])
		loop.rebuild()
	})

	return server.Start()
}

// serveLoop owns the rebuild state shared between the watcher goroutine
// and the initial build.
type serveLoop struct {
	compiler *compile.Compiler
	server   *devserver.Server

	mu      sync.Mutex
	watched []string
}

// watchedFiles returns the files of the last successful graph, for the
// watcher.
func (l *serveLoop) watchedFiles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watched
}

// rebuild runs one compilation and pushes the outcome to connected
// clients. Build failures keep the previous assets and watch list so the
// next edit can retry.
func (l *serveLoop) rebuild() {
	l.server.NotifyBuilding("")
	start := time.Now()
	comp, err := l.compiler.Run(context.Background())

	if files := graphFiles(comp); len(files) > 0 {
		l.mu.Lock()
		l.watched = files
		l.mu.Unlock()
	}

	if err != nil {
		l.server.NotifyError(comp.BuildID, time.Since(start), comp.Errors())
		return
	}

	total := 0
	for _, a := range comp.Report.Assets {
		total += len(a.Source)
	}
	l.server.NotifyBuilt(devserver.BuildResult{
		BuildID:    comp.BuildID,
		Modules:    comp.Graph.Len(),
		Chunks:     len(comp.Chunks.Chunks()),
		AssetBytes: total,
		Elapsed:    time.Since(start),
	})
}

// graphFiles lists the files behind the compilation's module identities,
// loader prefixes stripped.
func graphFiles(comp *compile.Compilation) []string {
	if comp == nil || comp.Graph == nil {
		return nil
	}
	mods := comp.Graph.Modules()
	files := make([]string, 0, len(mods))
	for _, m := range mods {
		_, resource := resolve.SplitLoaders(string(m.Identity))
		files = append(files, resource)
	}
	return files
}
