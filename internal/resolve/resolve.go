// Package resolve turns module requests into module identities. It follows
// the node algorithm: relative and absolute requests try the path itself,
// then registered extensions, then directory entry points; bare requests
// walk up through node_modules. A request may carry a loader chain prefix
// ("style!./a.css"); the chain stays in the identity while only the
// resource part is resolved.
package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
)

// Options configures a Resolver. Zero values select the defaults.
type Options struct {
	// Extensions are tried in order when the request has no match as
	// written. Default: .js, .mjs, .cjs, .json.
	Extensions []string
	// Alias rewrites requests before resolution. A key matches the whole
	// request or a "key/" prefix.
	Alias map[string]string
	// Modules names the directories searched for bare requests.
	// Default: node_modules.
	Modules []string
	// MainFields are the package.json fields naming a directory's entry,
	// tried in order. Default: module, main.
	MainFields []string
	// CacheSize bounds the resolution cache. Default: 4096.
	CacheSize int
}

func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".js", ".mjs", ".cjs", ".json"}
	}
	if len(o.Modules) == 0 {
		o.Modules = []string{"node_modules"}
	}
	if len(o.MainFields) == 0 {
		o.MainFields = []string{"module", "main"}
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 4096
	}
	return o
}

// Resolver maps (directory, request) pairs to identities. Successful
// resolutions are cached; failures are retried so files created between
// builds are picked up.
type Resolver struct {
	opts  Options
	cache *lru.Cache[string, graph.Identity]
}

// New builds a Resolver.
func New(opts Options) (*Resolver, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[string, graph.Identity](opts.CacheSize)
	if err != nil {
		return nil, werrors.Wrap(err, "creating resolution cache")
	}
	return &Resolver{opts: opts, cache: cache}, nil
}

// Resolve resolves request as written in a module that lives in dir.
func (r *Resolver) Resolve(dir, request string) (graph.Identity, error) {
	if request == "" {
		return "", werrors.NewValidation("request", "must not be empty")
	}
	key := dir + "\x00" + request
	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}

	loaders, resource := SplitLoaders(request)
	path, err := r.resolveResource(dir, resource)
	if err != nil {
		return "", err
	}
	id := graph.Identity(joinLoaders(loaders, path))
	r.cache.Add(key, id)
	return id, nil
}

// SplitLoaders separates a request's loader chain from its resource part.
// The resource is the segment after the last "!".
func SplitLoaders(request string) (loaders []string, resource string) {
	i := strings.LastIndexByte(request, '!')
	if i < 0 {
		return nil, request
	}
	return strings.Split(request[:i], "!"), request[i+1:]
}

func joinLoaders(loaders []string, path string) string {
	if len(loaders) == 0 {
		return path
	}
	return strings.Join(loaders, "!") + "!" + path
}

func (r *Resolver) resolveResource(dir, request string) (string, error) {
	request = r.applyAlias(request)

	var (
		path string
		ok   bool
	)
	switch {
	case isRelative(request):
		path, ok = r.loadFileOrDir(filepath.Join(dir, request))
	case filepath.IsAbs(request):
		path, ok = r.loadFileOrDir(filepath.Clean(request))
	default:
		path, ok = r.loadBare(dir, request)
	}
	if !ok {
		return "", werrors.Wrapf(werrors.ErrNotFound, "cannot resolve %q from %s", request, dir)
	}
	return canonical(path), nil
}

// canonical resolves symlinks so a file keeps one identity no matter which
// link name reached it.
func canonical(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

func (r *Resolver) applyAlias(request string) string {
	if len(r.opts.Alias) == 0 {
		return request
	}
	if to, ok := r.opts.Alias[request]; ok {
		return to
	}
	// Longest prefix wins so nested aliases behave predictably.
	var best string
	for from := range r.opts.Alias {
		if strings.HasPrefix(request, from+"/") && len(from) > len(best) {
			best = from
		}
	}
	if best != "" {
		return r.opts.Alias[best] + request[len(best):]
	}
	return request
}

func isRelative(request string) bool {
	return request == "." || request == ".." ||
		strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../")
}

// loadBare searches the module directories of dir and every ancestor.
func (r *Resolver) loadBare(dir, request string) (string, bool) {
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		for _, mod := range r.opts.Modules {
			if path, ok := r.loadFileOrDir(filepath.Join(d, mod, request)); ok {
				return path, true
			}
		}
		if d == filepath.Dir(d) {
			return "", false
		}
	}
}

func (r *Resolver) loadFileOrDir(path string) (string, bool) {
	if resolved, ok := r.loadFile(path); ok {
		return resolved, true
	}
	return r.loadDir(path)
}

// loadFile tries the path as written, then with each extension.
func (r *Resolver) loadFile(path string) (string, bool) {
	if isFile(path) {
		return path, true
	}
	for _, ext := range r.opts.Extensions {
		if isFile(path + ext) {
			return path + ext, true
		}
	}
	return "", false
}

// loadDir resolves a directory through its package.json entry fields,
// falling back to an index file.
func (r *Resolver) loadDir(path string) (string, bool) {
	if entry, ok := r.packageEntry(path); ok {
		if resolved, ok := r.loadFile(filepath.Join(path, entry)); ok {
			return resolved, true
		}
	}
	return r.loadFile(filepath.Join(path, "index"))
}

// packageEntry reads the first usable main field of path/package.json.
func (r *Resolver) packageEntry(path string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", false
	}
	for _, field := range r.opts.MainFields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		var entry string
		if err := json.Unmarshal(raw, &entry); err != nil || entry == "" {
			continue
		}
		return entry, true
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
