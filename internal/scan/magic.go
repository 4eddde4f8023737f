package scan

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Boundary annotations ride inside the import() parens as a block comment,
// a comma-separated list of key/value pairs:
//
//	import(/* chunkName: "settings", prefetch: true */ "./settings.js")
//
// Recognized keys are chunkName, mode, prefetch and preload. Unknown keys
// are ignored so modules annotated for other tools still scan. A comment
// that is not an annotation list at all is skipped silently; annotation
// comments live next to ordinary prose comments and only well-formed
// lists carry meaning.

//nolint:govet // participle grammar tags are not standard struct tags
type annotationList struct {
	Entries []annotationEntry `@@ ( "," @@ )* ","?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type annotationEntry struct {
	Key   string          `@Ident ":"`
	Value annotationValue `@@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type annotationValue struct {
	Str  *string `  @String`
	Word *string `| @Ident`
}

var annotationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_$][A-Za-z0-9_$]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Punct", Pattern: `[:,]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var annotationParser = participle.MustBuild[annotationList](
	participle.Lexer(annotationLexer),
	participle.Elide("Whitespace"),
)

// applyAnnotations folds one block comment into the directive. Comments
// that do not parse as an annotation list are ignored.
func applyAnnotations(d *Directive, comment string) {
	body := strings.TrimSuffix(strings.TrimPrefix(comment, "/*"), "*/")
	list, err := annotationParser.ParseString("", strings.TrimSpace(body))
	if err != nil {
		return
	}
	for _, e := range list.Entries {
		var value string
		switch {
		case e.Value.Str != nil:
			value = unquote(*e.Value.Str)
		case e.Value.Word != nil:
			value = *e.Value.Word
		}
		switch e.Key {
		case "chunkName":
			d.ChunkName = value
		case "mode":
			d.Mode = value
		case "prefetch":
			d.Prefetch = value == "true"
		case "preload":
			d.Preload = value == "true"
		}
	}
}
