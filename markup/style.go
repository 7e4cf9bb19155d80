package markup

import (
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// ParseStyle parses the declarations of an inline style attribute. Property
// names are lower-cased; "!important" is dropped.
func ParseStyle(s string) (map[string]string, error) {
	style := map[string]string{}
	p := css.NewParser(parse.NewInputString(s), true)
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return style, nil
		case css.DeclarationGrammar:
			var b strings.Builder
			for _, tok := range p.Values() {
				b.Write(tok.Data)
			}
			value := strings.TrimSpace(b.String())
			value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))
			style[string(data)] = value
		}
	}
}

// CSSName converts a camelCase property name ("fontSize") to its CSS form
// ("font-size"). Names that are already hyphenated are returned lower-cased.
func CSSName(name string) string {
	if strings.ContainsRune(name, '-') {
		return strings.ToLower(name)
	}
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
