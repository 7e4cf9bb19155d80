package markup

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"golang.org/x/text/unicode/norm"
)

var (
	markupLexer = lexer.MustStateful(lexer.Rules{
		"Root": {
			{Name: "Comment", Pattern: `<!--(?s:.*?)-->`},
			{Name: "CloseTag", Pattern: `</`, Action: lexer.Push("Tag")},
			{Name: "OpenTag", Pattern: `<`, Action: lexer.Push("Tag")},
			{Name: "Text", Pattern: `[^<]+`},
		},
		"Tag": {
			{Name: "Whitespace", Pattern: `\s+`},
			{Name: "SelfClose", Pattern: `/>`, Action: lexer.Pop()},
			{Name: "TagEnd", Pattern: `>`, Action: lexer.Pop()},
			{Name: "Equals", Pattern: `=`},
			{Name: "String", Pattern: `"[^"]*"|'[^']*'`},
			{Name: "Ident", Pattern: `[A-Za-z_:@][-A-Za-z0-9_:.@]*`},
			{Name: "Bare", Pattern: `[^\s"'=<>/]+`},
		},
	})

	documentParser = participle.MustBuild[document](
		participle.Lexer(markupLexer),
		participle.Elide("Comment", "Whitespace"),
	)
)

// voidElements may appear without a closing tag.
var voidElements = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "link": true, "meta": true,
}

// document is the flat token-level AST; nesting is rebuilt by buildTree so
// void elements and mismatched tags get precise errors.
type document struct {
	Items []*item `parser:"@@*"`
}

type item struct {
	Close *closeTag `parser:"  @@"`
	Open  *openTag  `parser:"| @@"`
	Text  *string   `parser:"| @Text"`
}

type openTag struct {
	Pos         lexer.Position `parser:""`
	Name        string         `parser:"OpenTag @Ident"`
	Attrs       []*attribute   `parser:"@@*"`
	SelfClosing bool           `parser:"( @SelfClose | TagEnd )"`
}

type closeTag struct {
	Pos  lexer.Position `parser:""`
	Name string         `parser:"CloseTag @Ident TagEnd"`
}

type attribute struct {
	Key   string  `parser:"@Ident"`
	Value *string `parser:"( Equals @( String | Ident | Bare ) )?"`
}

// ParseError reports malformed markup.
type ParseError struct {
	Pos lexer.Position
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("markup: %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
	}
	return "markup: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads markup from r and returns its element tree.
func Parse(r io.Reader) (*Node, error) {
	doc, err := documentParser.Parse("", r)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return buildTree(doc)
}

// ParseString parses markup held in a string.
func ParseString(input string) (*Node, error) {
	doc, err := documentParser.ParseString("", input)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return buildTree(doc)
}

func wrapParseError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &ParseError{Pos: perr.Position(), Msg: perr.Message(), Err: err}
	}
	return &ParseError{Msg: err.Error(), Err: err}
}

type frame struct {
	node *Node
	pos  lexer.Position
}

// buildTree nests the flat items. Several top-level nodes are wrapped in an
// implicit div.
func buildTree(doc *document) (*Node, error) {
	root := &Node{Tag: "div"}
	stack := []frame{{node: root}}

	for _, it := range doc.Items {
		top := stack[len(stack)-1]
		switch {
		case it.Open != nil:
			n, err := it.Open.node()
			if err != nil {
				return nil, err
			}
			top.node.Children = append(top.node.Children, n)
			if !it.Open.SelfClosing && !voidElements[n.Tag] {
				stack = append(stack, frame{node: n, pos: it.Open.Pos})
			}
		case it.Close != nil:
			name := strings.ToLower(it.Close.Name)
			if top.node.Tag != name && voidElements[name] {
				continue
			}
			if len(stack) == 1 {
				return nil, &ParseError{Pos: it.Close.Pos, Msg: fmt.Sprintf("unexpected closing tag </%s>", name)}
			}
			if top.node.Tag != name {
				return nil, &ParseError{Pos: it.Close.Pos, Msg: fmt.Sprintf("expected </%s>, found </%s>", top.node.Tag, name)}
			}
			trimEdges(top.node)
			stack = stack[:len(stack)-1]
		case it.Text != nil:
			if text := normalizeText(*it.Text); text != "" {
				top.node.Children = append(top.node.Children, Text(text))
			}
		}
	}
	if len(stack) > 1 {
		open := stack[len(stack)-1]
		return nil, &ParseError{Pos: open.pos, Msg: fmt.Sprintf("unclosed <%s>", open.node.Tag)}
	}
	trimEdges(root)

	switch {
	case len(root.Children) == 0:
		return nil, &ParseError{Msg: "empty markup"}
	case len(root.Children) == 1 && !root.Children[0].IsText():
		return root.Children[0], nil
	default:
		return root, nil
	}
}

func (o *openTag) node() (*Node, error) {
	n := &Node{Tag: strings.ToLower(o.Name)}
	for _, a := range o.Attrs {
		if n.Attrs == nil {
			n.Attrs = map[string]string{}
		}
		val := ""
		if a.Value != nil {
			val = html.UnescapeString(unquote(*a.Value))
		}
		n.Attrs[a.Key] = val
	}
	if raw, ok := n.Attrs["style"]; ok {
		style, err := ParseStyle(raw)
		if err != nil {
			return nil, &ParseError{Pos: o.Pos, Msg: fmt.Sprintf("invalid style on <%s>: %v", n.Tag, err), Err: err}
		}
		n.Style = style
		delete(n.Attrs, "style")
		if len(n.Attrs) == 0 {
			n.Attrs = nil
		}
	}
	return n, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// normalizeText decodes entities, applies NFC and collapses whitespace runs
// to one space, including a run at either end. Whitespace-only text yields "".
func normalizeText(raw string) string {
	text := norm.NFC.String(html.UnescapeString(raw))
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	out := strings.Join(fields, " ")
	if r, _ := utf8.DecodeRuneInString(text); unicode.IsSpace(r) {
		out = " " + out
	}
	if r, _ := utf8.DecodeLastRuneInString(text); unicode.IsSpace(r) {
		out += " "
	}
	return out
}

// trimEdges drops the collapsed space at the start of the first child and the
// end of the last child. Spaces between a text and an element sibling stay.
func trimEdges(n *Node) {
	if len(n.Children) == 0 {
		return
	}
	if first := n.Children[0]; first.IsText() {
		first.Text = strings.TrimLeft(first.Text, " ")
	}
	if last := n.Children[len(n.Children)-1]; last.IsText() {
		last.Text = strings.TrimRight(last.Text, " ")
	}
}
