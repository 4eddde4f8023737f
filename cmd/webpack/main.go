// Command webpack bundles script modules: it builds the dependency
// graph, splits it into chunks, assigns stable identifiers, and emits
// chunk assets with an on-demand loading runtime.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"

	"github.com/ThatTomPerson/webpack/core/compile"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/internal/buildcache"
	"github.com/ThatTomPerson/webpack/internal/bundler"
	"github.com/ThatTomPerson/webpack/internal/logging"
)

const version = "0.1.0"

// CLI defines the command-line interface for webpack.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"Path to the config file" default:"webpack.json" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text"`

	Build   BuildCmd   `cmd:"" help:"Run a full build and emit assets"`
	Serve   ServeCmd   `cmd:"" help:"Build, serve the output, and rebuild on change"`
	Graph   GraphCmd   `cmd:"" help:"Print the module dependency graph without emitting"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// loadSettings loads the config file and assembles build settings,
// resolving relative paths against the config file's directory.
func loadSettings(configPath string) (*buildSettings, error) {
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, werrors.NewIO("resolve config directory", configPath, err)
	}
	return assembleSettings(fc, base)
}

// newFactory wires the module factory, opening the build cache when the
// config names one. The returned closer is never nil.
func newFactory(settings *buildSettings) (*bundler.Factory, func(), error) {
	closer := func() {}
	if settings.CachePath != "" {
		cache, err := buildcache.Open(settings.CachePath)
		if err != nil {
			return nil, nil, err
		}
		settings.Bundler.Cache = cache
		closer = func() { cache.Close() }
	}
	factory, err := bundler.New(settings.Bundler)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return factory, closer, nil
}

// BuildCmd runs a full build.
type BuildCmd struct {
	Entry map[string]string `help:"Entry points as name=request pairs, overriding the config file"`
	Out   string            `help:"Override the output directory" type:"path"`
	Stats bool              `help:"Write a stats.json build report"`
}

func (c *BuildCmd) Run() error {
	settings, err := loadSettings(CLI.Config)
	if err != nil {
		return err
	}
	if len(c.Entry) > 0 {
		settings.Compile.Entries = c.Entry
	}
	if c.Out != "" {
		settings.Compile.Output.Dir = c.Out
	}
	if c.Stats {
		settings.Compile.Stats = true
	}

	factory, closeCache, err := newFactory(settings)
	if err != nil {
		return err
	}
	defer closeCache()

	start := time.Now()
	comp, err := compile.New(settings.Compile, factory).Run(context.Background())
	if err != nil {
		for _, e := range comp.Errors() {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", e)
		}
		return fmt.Errorf("build failed with %d errors", len(comp.Errors()))
	}

	fmt.Printf("Built %d modules into %d chunks in %s\n",
		comp.Graph.Len(), len(comp.Chunks.Chunks()), time.Since(start).Round(time.Millisecond))
	for _, a := range comp.Report.Assets {
		fmt.Printf("  %s  %d bytes\n", a.Filename, len(a.Source))
	}
	if comp.Manifest != nil {
		fmt.Printf("  manifest.json\n")
	}
	if comp.Stats != nil {
		fmt.Printf("  stats.json\n")
	}
	fmt.Printf("Output: %s\n", settings.Compile.Output.Dir)
	return nil
}

// GraphCmd prints the resolved module graph.
type GraphCmd struct {
	JSON bool `help:"Emit the graph as JSON"`
}

func (c *GraphCmd) Run() error {
	settings, err := loadSettings(CLI.Config)
	if err != nil {
		return err
	}
	factory, closeCache, err := newFactory(settings)
	if err != nil {
		return err
	}
	defer closeCache()

	comp, err := compile.New(settings.Compile, factory).Analyze(context.Background())
	if err != nil {
		for _, e := range comp.Errors() {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", e)
		}
		return fmt.Errorf("analysis failed with %d errors", len(comp.Errors()))
	}

	if c.JSON {
		return printGraphJSON(comp)
	}
	printGraphText(comp)
	return nil
}

func printGraphText(comp *compile.Compilation) {
	for _, e := range comp.Entries {
		fmt.Printf("entry %s -> %s\n", e.Name, e.Module)
	}
	for _, m := range comp.Graph.Modules() {
		tag := ""
		if m.BuildMeta.ESM {
			tag = " [esm]"
		}
		fmt.Printf("%s%s\n", m.Identity, tag)
		for _, d := range m.Dependencies {
			switch {
			case d.External != nil:
				fmt.Printf("  external %s -> %s %s\n", d.Request, d.External.Kind, d.External.Name)
			case d.Target == "":
				fmt.Printf("  %s %s (unresolved)\n", d.Kind, d.Request)
			case d.ChunkName != "":
				fmt.Printf("  %s %s -> %s (chunk %q)\n", d.Kind, d.Request, d.Target, d.ChunkName)
			default:
				fmt.Printf("  %s %s -> %s\n", d.Kind, d.Request, d.Target)
			}
		}
	}
}

type graphDepJSON struct {
	Request   string             `json:"request"`
	Kind      string             `json:"kind"`
	Target    graph.Identity     `json:"target,omitempty"`
	External  *graph.ExternalRef `json:"external,omitempty"`
	ChunkName string             `json:"chunkName,omitempty"`
}

type graphModuleJSON struct {
	Identity     graph.Identity `json:"identity"`
	ESM          bool           `json:"esm"`
	Exports      *[]string      `json:"exports"`
	Dependencies []graphDepJSON `json:"dependencies"`
}

type graphJSON struct {
	Entries map[string]graph.Identity `json:"entries"`
	Modules []graphModuleJSON         `json:"modules"`
}

func printGraphJSON(comp *compile.Compilation) error {
	out := graphJSON{Entries: make(map[string]graph.Identity, len(comp.Entries))}
	for _, e := range comp.Entries {
		out.Entries[e.Name] = e.Module
	}
	for _, m := range comp.Graph.Modules() {
		mj := graphModuleJSON{
			Identity:     m.Identity,
			ESM:          m.BuildMeta.ESM,
			Dependencies: make([]graphDepJSON, 0, len(m.Dependencies)),
		}
		if m.Exports.Known {
			names := append([]string(nil), m.Exports.Names...)
			mj.Exports = &names
		}
		for _, d := range m.Dependencies {
			mj.Dependencies = append(mj.Dependencies, graphDepJSON{
				Request:   d.Request,
				Kind:      d.Kind.String(),
				Target:    d.Target,
				External:  d.External,
				ChunkName: d.ChunkName,
			})
		}
		out.Modules = append(out.Modules, mj)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("webpack version %s\n", version)
	return nil
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseLogFormat(s string) logging.Format {
	if s == "json" {
		return logging.FormatJSON
	}
	return logging.FormatText
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("webpack"),
		kong.Description("Module bundler - dependency graph, code splitting, on-demand chunk loading"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	logging.InitLogger(parseLogLevel(CLI.LogLevel), parseLogFormat(CLI.LogFormat))
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
