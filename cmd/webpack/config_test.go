package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ThatTomPerson/webpack/core/emit"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/target"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "webpack.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"entry": {"main": "./src/index.js"},
		"target": "node",
		"output": {"dir": "build", "filename": "[name].[contenthash].js"}
	}`)

	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("loadFileConfig failed: %v", err)
	}
	if fc.Entry["main"] != "./src/index.js" {
		t.Errorf("unexpected entry: %v", fc.Entry)
	}
	if fc.Target != "node" {
		t.Errorf("unexpected target: %s", fc.Target)
	}
	if fc.Output.Dir != "build" {
		t.Errorf("unexpected output dir: %s", fc.Output.Dir)
	}
}

func TestLoadFileConfigUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"entry": {"main": "./a.js"}, "entries": {}}`)

	_, err := loadFileConfig(path)
	if err == nil {
		t.Fatal("expected an error for an unknown config key")
	}
	if !errors.Is(err, werrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoadFileConfigMissing(t *testing.T) {
	_, err := loadFileConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestAssembleSettingsDefaults(t *testing.T) {
	base := t.TempDir()
	fc := &fileConfig{Entry: map[string]string{"main": "./src/index.js"}}

	settings, err := assembleSettings(fc, base)
	if err != nil {
		t.Fatalf("assembleSettings failed: %v", err)
	}
	if settings.Compile.Context != base {
		t.Errorf("expected context %s, got %s", base, settings.Compile.Context)
	}
	if want := filepath.Join(base, "dist"); settings.Compile.Output.Dir != want {
		t.Errorf("expected output dir %s, got %s", want, settings.Compile.Output.Dir)
	}
	if settings.Compile.Target != target.Web {
		t.Errorf("expected web target by default")
	}
	if settings.Compile.Split.MinOverlap != 0.5 || !settings.Compile.Split.Dedupe {
		t.Errorf("expected default split policy, got %+v", settings.Compile.Split)
	}
	if settings.CachePath != "" {
		t.Errorf("expected no cache path, got %s", settings.CachePath)
	}
}

func TestAssembleSettingsNoEntries(t *testing.T) {
	_, err := assembleSettings(&fileConfig{}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error without entries")
	}
	if !errors.Is(err, werrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAssembleSettingsBadTarget(t *testing.T) {
	fc := &fileConfig{
		Entry:  map[string]string{"main": "./a.js"},
		Target: "wasm",
	}
	if _, err := assembleSettings(fc, t.TempDir()); err == nil {
		t.Fatal("expected an error for an unknown target")
	}
}

func TestAssembleSettingsSplitOverrides(t *testing.T) {
	dedupe := false
	overlap := 0.8
	maxSize := 1024
	fc := &fileConfig{
		Entry: map[string]string{"main": "./a.js"},
		Split: &splitConfig{Dedupe: &dedupe, MinOverlap: &overlap, MaxChunkSize: &maxSize},
	}

	settings, err := assembleSettings(fc, t.TempDir())
	if err != nil {
		t.Fatalf("assembleSettings failed: %v", err)
	}
	if settings.Compile.Split.Dedupe {
		t.Error("expected dedupe disabled")
	}
	if settings.Compile.Split.MinOverlap != 0.8 {
		t.Errorf("expected min overlap 0.8, got %v", settings.Compile.Split.MinOverlap)
	}
	if settings.Compile.Split.MaxChunkSize != 1024 {
		t.Errorf("expected max chunk size 1024, got %d", settings.Compile.Split.MaxChunkSize)
	}
}

func TestAssembleSettingsCompression(t *testing.T) {
	fc := &fileConfig{
		Entry:  map[string]string{"main": "./a.js"},
		Output: outputConfig{Compress: []string{"gzip", "xz"}},
	}
	settings, err := assembleSettings(fc, t.TempDir())
	if err != nil {
		t.Fatalf("assembleSettings failed: %v", err)
	}
	want := []emit.Compression{emit.CompressionGzip, emit.CompressionXZ}
	if len(settings.Compile.Output.Compression) != 2 {
		t.Fatalf("expected 2 compressions, got %v", settings.Compile.Output.Compression)
	}
	for i, c := range want {
		if settings.Compile.Output.Compression[i] != c {
			t.Errorf("expected compression %s at %d, got %s", c, i, settings.Compile.Output.Compression[i])
		}
	}

	fc.Output.Compress = []string{"brotli"}
	if _, err := assembleSettings(fc, t.TempDir()); err == nil {
		t.Fatal("expected an error for unknown compression")
	}
}

func TestAssembleSettingsExternals(t *testing.T) {
	fc := &fileConfig{
		Entry: map[string]string{"main": "./a.js"},
		Externals: map[string]externalConfig{
			"react": {Name: "React"},
			"fs":    {Name: "fs", Kind: "require"},
		},
	}
	settings, err := assembleSettings(fc, t.TempDir())
	if err != nil {
		t.Fatalf("assembleSettings failed: %v", err)
	}
	if ref := settings.Bundler.Externals["react"]; ref.Name != "React" || ref.Kind != "global" {
		t.Errorf("expected react -> global React, got %+v", ref)
	}
	if ref := settings.Bundler.Externals["fs"]; ref.Kind != "require" {
		t.Errorf("expected fs -> require, got %+v", ref)
	}

	fc.Externals = map[string]externalConfig{"x": {Name: "X", Kind: "import"}}
	if _, err := assembleSettings(fc, t.TempDir()); err == nil {
		t.Fatal("expected an error for unknown external kind")
	}
}

func TestExternalConfigShorthand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"entry": {"main": "./a.js"},
		"externals": {"react": "React", "lodash": {"name": "_", "kind": "global"}}
	}`)

	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("loadFileConfig failed: %v", err)
	}
	if fc.Externals["react"].Name != "React" {
		t.Errorf("expected shorthand external name React, got %+v", fc.Externals["react"])
	}
	if fc.Externals["lodash"].Name != "_" {
		t.Errorf("expected object external name _, got %+v", fc.Externals["lodash"])
	}
}

func TestAssembleDefinesFromEnvFile(t *testing.T) {
	base := t.TempDir()
	envPath := filepath.Join(base, ".env")
	if err := os.WriteFile(envPath, []byte("API_URL=https://example.com\nDEBUG=1\n"), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	fc := &fileConfig{
		Entry:   map[string]string{"main": "./a.js"},
		EnvFile: ".env",
		Defines: map[string]string{"process.env.DEBUG": "false"},
	}
	settings, err := assembleSettings(fc, base)
	if err != nil {
		t.Fatalf("assembleSettings failed: %v", err)
	}

	defines := settings.Bundler.Defines
	if defines["process.env.API_URL"] != `"https://example.com"` {
		t.Errorf("expected quoted env value, got %s", defines["process.env.API_URL"])
	}
	// Explicit defines win over .env values.
	if defines["process.env.DEBUG"] != "false" {
		t.Errorf("expected explicit define to win, got %s", defines["process.env.DEBUG"])
	}
}

func TestAssembleSettingsCachePath(t *testing.T) {
	base := t.TempDir()
	fc := &fileConfig{
		Entry: map[string]string{"main": "./a.js"},
		Cache: ".webpack-cache.db",
	}
	settings, err := assembleSettings(fc, base)
	if err != nil {
		t.Fatalf("assembleSettings failed: %v", err)
	}
	if want := filepath.Join(base, ".webpack-cache.db"); settings.CachePath != want {
		t.Errorf("expected cache path %s, got %s", want, settings.CachePath)
	}
}
