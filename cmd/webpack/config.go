package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"

	"github.com/ThatTomPerson/webpack/core/compile"
	"github.com/ThatTomPerson/webpack/core/emit"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
	"github.com/ThatTomPerson/webpack/core/manifest"
	"github.com/ThatTomPerson/webpack/core/split"
	"github.com/ThatTomPerson/webpack/core/target"
	"github.com/ThatTomPerson/webpack/internal/bundler"
	"github.com/ThatTomPerson/webpack/internal/resolve"
)

// fileConfig mirrors webpack.json. Unknown keys are rejected so a typo
// fails the build instead of silently using defaults.
type fileConfig struct {
	Context          string                    `json:"context"`
	Entry            map[string]string         `json:"entry"`
	Target           string                    `json:"target"`
	IDs              string                    `json:"ids"`
	RuntimeChunk     string                    `json:"runtimeChunk"`
	ChunkLoadTimeout int                       `json:"chunkLoadTimeout"`
	Split            *splitConfig              `json:"split"`
	Output           outputConfig              `json:"output"`
	Resolve          resolveConfig             `json:"resolve"`
	Externals        map[string]externalConfig `json:"externals"`
	Defines          map[string]string         `json:"defines"`
	EnvFile          string                    `json:"envFile"`
	Manifest         *manifestConfig           `json:"manifest"`
	Stats            bool                      `json:"stats"`
	Cache            string                    `json:"cache"`
}

type splitConfig struct {
	Dedupe       *bool    `json:"dedupe"`
	MinOverlap   *float64 `json:"minOverlap"`
	MaxChunkSize *int     `json:"maxChunkSize"`
}

type outputConfig struct {
	Dir           string   `json:"dir"`
	Filename      string   `json:"filename"`
	ChunkFilename string   `json:"chunkFilename"`
	PublicPath    string   `json:"publicPath"`
	GlobalVar     string   `json:"globalVar"`
	Library       string   `json:"library"`
	SourceMap     bool     `json:"sourceMap"`
	SourceMapURL  string   `json:"sourceMapUrl"`
	Compress      []string `json:"compress"`
}

type resolveConfig struct {
	Extensions []string          `json:"extensions"`
	Alias      map[string]string `json:"alias"`
	Modules    []string          `json:"modules"`
	MainFields []string          `json:"mainFields"`
}

// externalConfig accepts either the full {name, kind} object or a bare
// string naming a host global.
type externalConfig struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (e *externalConfig) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Name)
	}
	type plain externalConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = externalConfig(p)
	return nil
}

type manifestConfig struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	EntryOnly bool   `json:"entryOnly"`
}

// loadFileConfig reads and strictly decodes a webpack.json file.
func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, werrors.NewIO("read config", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return nil, werrors.NewParse("config", path, err.Error())
	}
	return &fc, nil
}

// buildSettings is everything a build command needs: pipeline config,
// factory options, and the optional cache location.
type buildSettings struct {
	Compile   compile.Config
	Bundler   bundler.Options
	CachePath string
}

// assembleSettings turns a decoded config file into build settings.
// Relative paths resolve against the config file's directory.
func assembleSettings(fc *fileConfig, baseDir string) (*buildSettings, error) {
	if len(fc.Entry) == 0 {
		return nil, werrors.NewValidation("entry", "at least one entry is required")
	}

	tgt, err := target.ByName(fc.Target)
	if err != nil {
		return nil, err
	}

	splitOpts := split.DefaultOptions()
	if fc.Split != nil {
		if fc.Split.Dedupe != nil {
			splitOpts.Dedupe = *fc.Split.Dedupe
		}
		if fc.Split.MinOverlap != nil {
			splitOpts.MinOverlap = *fc.Split.MinOverlap
		}
		if fc.Split.MaxChunkSize != nil {
			splitOpts.MaxChunkSize = *fc.Split.MaxChunkSize
		}
	}

	compression := make([]emit.Compression, 0, len(fc.Output.Compress))
	for _, name := range fc.Output.Compress {
		switch c := emit.Compression(name); c {
		case emit.CompressionGzip, emit.CompressionXZ:
			compression = append(compression, c)
		default:
			return nil, werrors.NewValidation("output.compress", "unknown compression "+name)
		}
	}

	outDir := fc.Output.Dir
	if outDir == "" {
		outDir = "dist"
	}

	cfg := compile.Config{
		Context:          absAgainst(baseDir, firstNonEmpty(fc.Context, ".")),
		Entries:          fc.Entry,
		Target:           tgt,
		IDStrategy:       fc.IDs,
		Split:            splitOpts,
		ExtractRuntime:   fc.RuntimeChunk,
		PublicPath:       fc.Output.PublicPath,
		GlobalVar:        fc.Output.GlobalVar,
		ChunkLoadTimeout: fc.ChunkLoadTimeout,
		Output: emit.Options{
			Dir:           absAgainst(baseDir, outDir),
			Filename:      fc.Output.Filename,
			ChunkFilename: fc.Output.ChunkFilename,
			GlobalVar:     fc.Output.GlobalVar,
			Library:       fc.Output.Library,
			SourceMap:     fc.Output.SourceMap,
			SourceMapURL:  fc.Output.SourceMapURL,
			Compression:   compression,
		},
		Stats: fc.Stats,
	}
	if fc.Manifest != nil {
		cfg.Manifest = &manifest.Options{
			Name:      fc.Manifest.Name,
			Type:      fc.Manifest.Type,
			EntryOnly: fc.Manifest.EntryOnly,
		}
	}

	defines, err := assembleDefines(fc, baseDir)
	if err != nil {
		return nil, err
	}

	externals := make(map[string]graph.ExternalRef, len(fc.Externals))
	for request, ext := range fc.Externals {
		if ext.Name == "" {
			return nil, werrors.NewValidation("externals", "external "+request+" has no name")
		}
		kind := ext.Kind
		if kind == "" {
			kind = "global"
		}
		if kind != "global" && kind != "require" {
			return nil, werrors.NewValidation("externals", "external "+request+" has unknown kind "+kind)
		}
		externals[request] = graph.ExternalRef{Name: ext.Name, Kind: kind}
	}

	settings := &buildSettings{
		Compile: cfg,
		Bundler: bundler.Options{
			Resolve: resolve.Options{
				Extensions: fc.Resolve.Extensions,
				Alias:      fc.Resolve.Alias,
				Modules:    fc.Resolve.Modules,
				MainFields: fc.Resolve.MainFields,
			},
			Externals: externals,
			Defines:   defines,
		},
	}
	if fc.Cache != "" {
		settings.CachePath = absAgainst(baseDir, fc.Cache)
	}
	return settings, nil
}

// assembleDefines merges .env values under process.env.* with the
// config's explicit defines. Env values are raw strings and get quoted;
// explicit defines are JS expressions and win on conflict.
func assembleDefines(fc *fileConfig, baseDir string) (map[string]string, error) {
	defines := make(map[string]string)

	if fc.EnvFile != "" {
		envPath := absAgainst(baseDir, fc.EnvFile)
		env, err := godotenv.Read(envPath)
		if err != nil {
			return nil, werrors.NewIO("read env file", envPath, err)
		}
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			quoted, err := json.Marshal(env[k])
			if err != nil {
				return nil, werrors.Wrap(err, "encoding env value")
			}
			defines["process.env."+k] = string(quoted)
		}
	}

	for k, v := range fc.Defines {
		defines[k] = v
	}
	return defines, nil
}

func absAgainst(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
