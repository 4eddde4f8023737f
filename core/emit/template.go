// Package emit renders chunks into assets and writes them out: filename
// template expansion, the chunk file formats per target, source map
// footers, atomic writes with optional compressed variants, and the build
// stats artifact.
package emit

import (
	"strconv"
	"strings"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// Vars are the values filename placeholders expand to.
type Vars struct {
	// ID is the chunk id.
	ID string
	// Name is the chunk name, falling back to the id for anonymous chunks.
	Name string
	// Hash identifies the whole compilation.
	Hash string
	// ChunkHash identifies the chunk's module set.
	ChunkHash string
	// ContentHash identifies the chunk's rendered content.
	ContentHash string
}

// ExpandTemplate substitutes [id], [name], [hash], [chunkhash] and
// [contenthash] in a filename template. Hash placeholders accept a length,
// as in [contenthash:8]. Any other bracketed token is a configuration
// error: a typo silently passed through would produce literal brackets in
// asset names.
func ExpandTemplate(tmpl string, vars Vars) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.IndexByte(rest[open:], ']')
		if closing < 0 {
			return "", werrors.NewValidation("filename", "unclosed placeholder in template "+tmpl)
		}
		b.WriteString(rest[:open])
		token := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]

		value, err := expandToken(token, tmpl, vars)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
	}
}

func expandToken(token, tmpl string, vars Vars) (string, error) {
	name := token
	length := 0
	if i := strings.IndexByte(token, ':'); i >= 0 {
		name = token[:i]
		n, err := strconv.Atoi(token[i+1:])
		if err != nil || n <= 0 {
			return "", werrors.NewValidation("filename", "bad placeholder length in ["+token+"]")
		}
		length = n
	}

	var value string
	hashed := false
	switch name {
	case "id":
		value = vars.ID
	case "name":
		value = vars.Name
		if value == "" {
			value = vars.ID
		}
	case "hash":
		value, hashed = vars.Hash, true
	case "chunkhash":
		value, hashed = vars.ChunkHash, true
	case "contenthash":
		value, hashed = vars.ContentHash, true
	default:
		return "", werrors.NewValidation("filename", "unknown placeholder ["+token+"] in template "+tmpl)
	}

	if length > 0 {
		if !hashed {
			return "", werrors.NewValidation("filename", "length applies to hash placeholders only: ["+token+"]")
		}
		if length < len(value) {
			value = value[:length]
		}
	}
	return value, nil
}
