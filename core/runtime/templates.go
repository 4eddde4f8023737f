package runtime

import (
	"bytes"
	"embed"
	"encoding/json"
	"sort"
	"strings"
	"text/template"

	"github.com/ThatTomPerson/webpack/core/chunk"
	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/ids"
	"github.com/ThatTomPerson/webpack/core/target"
)

//go:embed templates/*.js.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.js.tmpl"))

// templateData is the compilation-wide data every runtime template renders
// against. It carries no per-entry state so shared runtime modules stay
// byte-identical wherever they are emitted.
type templateData struct {
	GlobalObject    string
	GlobalVar       string
	PublicPath      string
	LoadTimeout     int
	InstalledChunks string
	FilenameExpr    string
}

func (a *Assembler) templateData(cg *chunk.Graph, assign *ids.Assignment, caps target.Capabilities) (*templateData, error) {
	installed, err := installedChunksLiteral(cg, assign)
	if err != nil {
		return nil, err
	}
	expr, err := filenameExpr(a.opts.Filenames)
	if err != nil {
		return nil, err
	}
	timeout := caps.LoadTimeout
	if a.opts.LoadTimeout > 0 {
		timeout = a.opts.LoadTimeout
	}
	return &templateData{
		GlobalObject:    caps.GlobalObject,
		GlobalVar:       a.opts.GlobalVar,
		PublicPath:      a.opts.PublicPath,
		LoadTimeout:     timeout,
		InstalledChunks: installed,
		FilenameExpr:    expr,
	}, nil
}

// installedChunksLiteral renders the initial chunk state object: every
// chunk loaded eagerly alongside the runtime starts out as 0, "already
// loaded". On-demand chunks are absent until requested.
func installedChunksLiteral(cg *chunk.Graph, assign *ids.Assignment) (string, error) {
	var chunkIDs []string
	for _, c := range cg.Chunks() {
		if !c.Initial && !c.Runtime {
			continue
		}
		id, ok := assign.ChunkID(c.Key())
		if !ok {
			return "", werrors.Wrapf(werrors.ErrInternal, "chunk %s has no id", c.Key())
		}
		chunkIDs = append(chunkIDs, id)
	}
	sort.Strings(chunkIDs)

	var b strings.Builder
	b.WriteString("{")
	for i, id := range chunkIDs {
		if i > 0 {
			b.WriteString(",")
		}
		key, err := jsString(id)
		if err != nil {
			return "", err
		}
		b.WriteString(key)
		b.WriteString(": 0")
	}
	b.WriteString("}")
	return b.String(), nil
}

// filenameExpr renders the JS expression mapping a chunk id to its asset
// name. Without an explicit map the convention is "<id>.js".
func filenameExpr(filenames map[string]string) (string, error) {
	if len(filenames) == 0 {
		return `"" + chunkId + ".js"`, nil
	}
	keys := make([]string, 0, len(filenames))
	for k := range filenames {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("({")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		key, err := jsString(k)
		if err != nil {
			return "", err
		}
		val, err := jsString(filenames[k])
		if err != nil {
			return "", err
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(val)
	}
	b.WriteString("})[chunkId]")
	return b.String(), nil
}

// jsString renders a Go string as a JS string literal. JSON string syntax
// is a subset of JS and the encoder escapes the line separators JS chokes
// on, so the output is safe to splice into emitted code.
func jsString(s string) (string, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return "", werrors.Wrap(err, "encoding js string")
	}
	return string(out), nil
}

// templateFor maps a requirement to its template, per transport where the
// implementation differs.
func templateFor(req Requirement, caps target.Capabilities) (string, bool) {
	switch req {
	case ReqRequire:
		return "require.js.tmpl", true
	case ReqHasOwn:
		return "has_own.js.tmpl", true
	case ReqDefineExports:
		return "define_exports.js.tmpl", true
	case ReqMakeNamespace:
		return "make_namespace.js.tmpl", true
	case ReqCompatDefault:
		return "compat_default.js.tmpl", true
	case ReqPublicPath:
		return "public_path.js.tmpl", true
	case ReqChunkFilename:
		return "chunk_filename.js.tmpl", true
	case ReqLoadScript:
		return "load_script.js.tmpl", true
	case ReqEnsureChunk:
		return "ensure_chunk.js.tmpl", true
	case ReqChunkLoading:
		switch caps.ChunkLoading {
		case target.LoadRequire:
			return "require_chunk.js.tmpl", true
		case target.LoadHook:
			return "hook_chunk.js.tmpl", true
		default:
			return "jsonp_chunk.js.tmpl", true
		}
	default:
		return "", false
	}
}

func renderTemplate(name string, data *templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, werrors.Wrapf(err, "rendering runtime template %s", name)
	}
	return buf.Bytes(), nil
}
