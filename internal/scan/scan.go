// Package scan extracts dependency directives from module source: static
// imports, re-exports, require calls and dynamic import() boundaries with
// their chunk annotations, plus the statically known export names. It
// tokenizes rather than fully parses; the token walk skips string and
// comment interiors, which is what trips up regex-based scanners.
package scan

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/core/graph"
)

// Directive is one dependency statement found in a module.
type Directive struct {
	// Request is the raw module request, unquoted.
	Request string
	// Kind classifies the edge the directive produces.
	Kind graph.DepKind
	// ChunkName carries the chunkName annotation on dynamic imports.
	ChunkName string
	// Mode is the annotated loading mode, empty or "lazy"/"eager".
	Mode string
	// Prefetch and Preload mirror the boundary annotations.
	Prefetch bool
	Preload  bool
	// Line is where the directive starts, for diagnostics.
	Line int
}

// Result is everything the scanner learned about one module.
type Result struct {
	Directives []Directive
	// ESM is set when any import or export statement appears.
	ESM bool
	// ExportsKnown reports whether the export names are statically
	// complete. An `export *` makes them unknowable.
	ExportsKnown bool
	// Exports lists the known exported names in declaration order.
	Exports []string
}

var jsLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "LineComment", Pattern: `//[^\n]*`},
	{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Template", Pattern: "`(?:\\\\.|[^`\\\\])*`"},
	{Name: "Ident", Pattern: `[A-Za-z_$][A-Za-z0-9_$]*`},
	{Name: "Number", Pattern: `[0-9][0-9a-fA-F_xX.]*`},
	{Name: "Punct", Pattern: `[-+*/%=<>!&|^~?:;,.(){}\[\]@#]`},
	{Name: "Whitespace", Pattern: `\s+`},
	// Whatever the rules above miss, e.g. backslashes in regex literals.
	{Name: "Any", Pattern: `.`},
})

var (
	jsSymbols      = jsLexer.Symbols()
	tokIdent       = jsSymbols["Ident"]
	tokString      = jsSymbols["String"]
	tokPunct       = jsSymbols["Punct"]
	tokLineComment = jsSymbols["LineComment"]
	tokBlock       = jsSymbols["BlockComment"]
	tokWhitespace  = jsSymbols["Whitespace"]
)

// File scans one module source. Path only labels error positions.
func File(path string, src []byte) (*Result, error) {
	toks, err := tokenize(path, string(src))
	if err != nil {
		return nil, err
	}
	s := &scanner{toks: toks, res: &Result{ExportsKnown: true}}
	s.run()
	return s.res, nil
}

func tokenize(path, src string) ([]lexer.Token, error) {
	lx, err := jsLexer.LexString(path, src)
	if err != nil {
		return nil, werrors.NewParse("js", path, err.Error())
	}
	var toks []lexer.Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, werrors.NewParse("js", path, err.Error())
		}
		if tok.EOF() {
			return toks, nil
		}
		if tok.Type == tokWhitespace {
			continue
		}
		toks = append(toks, tok)
	}
}

type scanner struct {
	toks []lexer.Token
	pos  int
	res  *Result
}

func (s *scanner) run() {
	for s.pos < len(s.toks) {
		t := s.toks[s.pos]
		switch {
		case isIdent(t, "import"):
			s.scanImport()
		case isIdent(t, "export"):
			s.scanExport()
		case isIdent(t, "require"):
			s.scanRequire()
		default:
			s.pos++
		}
	}
}

// next returns the i-th token after the cursor, skipping comments.
func (s *scanner) next(i int) (lexer.Token, bool) {
	seen := 0
	for j := s.pos + 1; j < len(s.toks); j++ {
		t := s.toks[j]
		if t.Type == tokLineComment || t.Type == tokBlock {
			continue
		}
		if seen == i {
			return t, true
		}
		seen++
	}
	return lexer.Token{}, false
}

func (s *scanner) add(d Directive) {
	s.res.Directives = append(s.res.Directives, d)
}

// scanImport handles `import(...)` boundaries, `import "x"` side-effect
// imports and `import ... from "x"` clauses.
func (s *scanner) scanImport() {
	start := s.toks[s.pos]
	if t, ok := s.next(0); ok && isPunct(t, "(") {
		s.scanDynamicImport(start.Pos.Line)
		return
	}
	// A property access like `obj.import` is not a statement.
	if s.pos > 0 && isPunct(s.toks[s.pos-1], ".") {
		s.pos++
		return
	}
	// Only statement-shaped imports count: a clause, a string request or
	// import.meta. A bare `import` ident, say inside a regex literal, is
	// not one.
	t, ok := s.next(0)
	if !ok || !(t.Type == tokString || t.Type == tokIdent ||
		isPunct(t, "{") || isPunct(t, "*") || isPunct(t, ".")) {
		s.pos++
		return
	}
	s.res.ESM = true

	// Side-effect import: the request follows directly.
	if t.Type == tokString {
		s.add(Directive{Request: unquote(t.Value), Kind: graph.KindSync, Line: start.Pos.Line})
		s.pos += 2
		return
	}
	// Clause import: skip to `from "x"`, bounded by the statement end.
	for j := s.pos + 1; j < len(s.toks); j++ {
		t := s.toks[j]
		if isPunct(t, ";") {
			break
		}
		if isIdent(t, "from") && j+1 < len(s.toks) && s.toks[j+1].Type == tokString {
			s.add(Directive{Request: unquote(s.toks[j+1].Value), Kind: graph.KindSync, Line: start.Pos.Line})
			s.pos = j + 2
			return
		}
	}
	s.pos++
}

// scanDynamicImport consumes `import( /* annotations */ "request" )`.
// Annotations between the paren and the request string name the chunk and
// its loading hints. The request must be the first real token inside the
// parens; anything else is a computed expression and produces no edge.
func (s *scanner) scanDynamicImport(line int) {
	d := Directive{Kind: graph.KindAsync, Line: line}
	sawOpen := false
	j := s.pos + 1
	for ; j < len(s.toks); j++ {
		t := s.toks[j]
		switch {
		case !sawOpen && isPunct(t, "("):
			sawOpen = true
		case t.Type == tokBlock:
			applyAnnotations(&d, t.Value)
		case t.Type == tokLineComment:
		case t.Type == tokString && sawOpen:
			d.Request = unquote(t.Value)
			if d.Mode == "weak" {
				d.Kind = graph.KindWeak
			}
			s.add(d)
			s.pos = j + 1
			return
		default:
			s.pos = j + 1
			return
		}
	}
	s.pos = j
}

// scanExport records export names and re-export edges. Tokens that merely
// look like the keyword, say inside a regex literal, fail the form check
// and are skipped without marking the module as ESM.
func (s *scanner) scanExport() {
	start := s.toks[s.pos]
	t, ok := s.next(0)
	if !ok || !exportForm(t) {
		s.pos++
		return
	}
	s.res.ESM = true

	switch {
	case isIdent(t, "default"):
		s.res.Exports = append(s.res.Exports, "default")

	case isIdent(t, "const"), isIdent(t, "let"), isIdent(t, "var"),
		isIdent(t, "function"), isIdent(t, "class"), isIdent(t, "async"):
		if name, ok := s.declaredName(); ok {
			s.res.Exports = append(s.res.Exports, name)
		}

	case isPunct(t, "*"):
		s.res.ExportsKnown = false
		if from, ok := s.reExportRequest(); ok {
			s.add(Directive{Request: from, Kind: graph.KindSync, Line: start.Pos.Line})
		}

	case isPunct(t, "{"):
		names := s.exportClauseNames()
		if from, ok := s.reExportRequest(); ok {
			s.add(Directive{Request: from, Kind: graph.KindSync, Line: start.Pos.Line})
		}
		s.res.Exports = append(s.res.Exports, names...)
	}
	s.pos += 2
}

func exportForm(t lexer.Token) bool {
	switch {
	case isIdent(t, "default"), isIdent(t, "const"), isIdent(t, "let"),
		isIdent(t, "var"), isIdent(t, "function"), isIdent(t, "class"),
		isIdent(t, "async"):
		return true
	case isPunct(t, "*"), isPunct(t, "{"):
		return true
	}
	return false
}

// declaredName finds the declared name after the declaration keyword,
// skipping `async` and generator stars.
func (s *scanner) declaredName() (string, bool) {
	for i := 1; i <= 3; i++ {
		t, ok := s.next(i)
		if !ok {
			return "", false
		}
		if t.Type == tokIdent && !isIdent(t, "function") {
			return t.Value, true
		}
		if !isPunct(t, "*") && !isIdent(t, "function") {
			return "", false
		}
	}
	return "", false
}

// exportClauseNames collects the exported aliases of `{ a, b as c }`.
func (s *scanner) exportClauseNames() []string {
	var names []string
	var last string
	for i := 1; ; i++ {
		t, ok := s.next(i)
		if !ok {
			break
		}
		if isPunct(t, "}") {
			break
		}
		if isIdent(t, "as") {
			last = ""
			continue
		}
		if t.Type == tokIdent || t.Type == tokString {
			value := t.Value
			if t.Type == tokString {
				value = unquote(value)
			}
			last = value
			continue
		}
		if isPunct(t, ",") && last != "" {
			names = append(names, last)
			last = ""
		}
	}
	if last != "" {
		names = append(names, last)
	}
	return names
}

// reExportRequest finds `from "x"` before the end of the statement.
func (s *scanner) reExportRequest() (string, bool) {
	for j := s.pos + 1; j < len(s.toks); j++ {
		t := s.toks[j]
		if isPunct(t, ";") {
			return "", false
		}
		if isIdent(t, "from") && j+1 < len(s.toks) && s.toks[j+1].Type == tokString {
			return unquote(s.toks[j+1].Value), true
		}
	}
	return "", false
}

// scanRequire handles require("x"), require.resolve("x") and
// require.resolveWeak("x").
func (s *scanner) scanRequire() {
	start := s.toks[s.pos]
	// Property access like `module.require` is left alone.
	if s.pos > 0 && isPunct(s.toks[s.pos-1], ".") {
		s.pos++
		return
	}

	kind := graph.KindSync
	offset := 0
	if t, ok := s.next(0); ok && isPunct(t, ".") {
		member, ok := s.next(1)
		if !ok {
			s.pos++
			return
		}
		switch {
		case isIdent(member, "resolveWeak"):
			kind = graph.KindWeak
		case isIdent(member, "resolve"):
			kind = graph.KindSync
		default:
			s.pos++
			return
		}
		offset = 2
	}

	open, ok := s.next(offset)
	if !ok || !isPunct(open, "(") {
		s.pos++
		return
	}
	arg, ok := s.next(offset + 1)
	if !ok || arg.Type != tokString {
		// Dynamic expression, nothing to record.
		s.pos++
		return
	}
	s.add(Directive{Request: unquote(arg.Value), Kind: kind, Line: start.Pos.Line})
	s.pos++
}

func isIdent(t lexer.Token, value string) bool {
	return t.Type == tokIdent && t.Value == value
}

func isPunct(t lexer.Token, value string) bool {
	return t.Type == tokPunct && t.Value == value
}

// unquote strips JS string literal quotes and resolves the escapes that
// occur in module requests.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"', '\'', '\\', '/':
			b.WriteByte(body[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
