package runtime

import (
	"bytes"
	"sort"

	"github.com/ThatTomPerson/webpack/core/graph"
)

// DecoratorKind selects the factory wrapper a module is emitted with. The
// build metadata decides: ES modules get the interop wrapper that tags and
// populates a namespace object, everything else gets the plain CommonJS
// shape.
type DecoratorKind int

const (
	// DecoratePlain wraps the source in a bare factory. The module talks
	// to the world through module.exports.
	DecoratePlain DecoratorKind = iota
	// DecorateInterop marks the exports object as an ES namespace and
	// installs getters for the known export names before the body runs.
	DecorateInterop
)

func (k DecoratorKind) String() string {
	if k == DecorateInterop {
		return "interop"
	}
	return "plain"
}

// DecoratorFor picks the wrapper for a module from its build metadata.
func DecoratorFor(m *graph.Module) DecoratorKind {
	if m.BuildMeta.ESM {
		return DecorateInterop
	}
	return DecoratePlain
}

// Decorate wraps module source into the factory shape the dispatcher
// calls: function(module, exports, require). Interop factories run in
// strict mode, tag the namespace and expose the known exports as getters
// over same-named local bindings.
func Decorate(m *graph.Module, kind DecoratorKind) []byte {
	var b bytes.Buffer
	b.WriteString("(function(module, exports, __webpack_require__) {\n")
	switch kind {
	case DecorateInterop:
		b.WriteString("\"use strict\";\n")
		b.WriteString("__webpack_require__.r(exports);\n")
		if m.Exports.Known && len(m.Exports.Names) > 0 {
			names := append([]string(nil), m.Exports.Names...)
			sort.Strings(names)
			b.WriteString("__webpack_require__.d(exports, {\n")
			for i, name := range names {
				b.WriteString("\t")
				b.WriteString(name)
				b.WriteString(": () => (")
				b.WriteString(name)
				b.WriteString(")")
				if i < len(names)-1 {
					b.WriteString(",")
				}
				b.WriteString("\n")
			}
			b.WriteString("});\n")
		}
	}
	b.Write(m.Source)
	if len(m.Source) > 0 && m.Source[len(m.Source)-1] != '\n' {
		b.WriteString("\n")
	}
	b.WriteString("})")
	return b.Bytes()
}
