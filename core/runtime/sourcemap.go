package runtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// SourceMap is the subset of the source map format the eval devtool
// carries through.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
}

// SourceMapper rewrites source file references into the stable
// scheme://namespace/path form debuggers display, and keeps the rewritten
// names unique across a compilation. When two different resources reduce
// to the same display path the later one gains "*" markers until it is
// distinct again.
type SourceMapper struct {
	// Namespace separates this build's sources from other bundles on the
	// same page.
	Namespace string

	seen       map[string]bool
	byResource map[string]string
}

// NewSourceMapper creates a mapper for a namespace.
func NewSourceMapper(namespace string) *SourceMapper {
	return &SourceMapper{
		Namespace:  namespace,
		seen:       make(map[string]bool),
		byResource: make(map[string]string),
	}
}

// ModuleURL returns the display URL for a resource path. The same resource
// always maps to the same URL; distinct resources never share one.
func (sm *SourceMapper) ModuleURL(resource string) string {
	if url, ok := sm.byResource[resource]; ok {
		return url
	}
	path := strings.TrimPrefix(resource, "./")
	url := "webpack://" + sm.Namespace + "/" + path
	for sm.seen[url] {
		url += "*"
	}
	sm.seen[url] = true
	sm.byResource[resource] = url
	return url
}

// EvalModule wraps decorated module source into an eval() call carrying an
// inline base64 source map, the shape the eval-source-map devtool emits.
// The map's sources are rewritten through the mapper first.
func EvalModule(source []byte, m *SourceMap, sm *SourceMapper) ([]byte, error) {
	body := string(source)
	if m != nil {
		rewritten := *m
		rewritten.Sources = make([]string, len(m.Sources))
		for i, s := range m.Sources {
			rewritten.Sources[i] = sm.ModuleURL(s)
		}
		encoded, err := json.Marshal(&rewritten)
		if err != nil {
			return nil, werrors.Wrap(err, "encoding source map")
		}
		b64 := base64.StdEncoding.EncodeToString(encoded)
		body += "\n//# sourceMappingURL=data:application/json;charset=utf-8;base64," + b64
	}

	quoted, err := jsString(body)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.WriteString("eval(")
	b.WriteString(quoted)
	b.WriteString(");")
	return b.Bytes(), nil
}
