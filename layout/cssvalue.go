package layout

import (
	"math"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/image/colornames"
)

// token 是属性值中的一个 CSS 词法单元。
type token struct {
	tt   css.TokenType
	data string
}

// lexValue 用 CSS 词法分析器切分属性值，注释被丢弃。
func lexValue(v string) []token {
	l := css.NewLexer(parse.NewInputString(v))
	var out []token
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			return out
		case css.CommentToken:
			continue
		}
		out = append(out, token{tt: tt, data: string(data)})
	}
}

func trimSpace(toks []token) []token {
	for len(toks) > 0 && toks[0].tt == css.WhitespaceToken {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].tt == css.WhitespaceToken {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func joinTokens(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.data)
	}
	return b.String()
}

// splitValue 按顶层空白拆分属性值，函数参数内的空白不拆分。
func splitValue(v string) []string {
	var out []string
	var cur []token
	depth := 0
	for _, t := range lexValue(v) {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			depth = max(depth-1, 0)
		case css.WhitespaceToken:
			if depth == 0 {
				if len(cur) > 0 {
					out = append(out, joinTokens(cur))
					cur = nil
				}
				continue
			}
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		out = append(out, joinTokens(cur))
	}
	return out
}

// functionArgs 把 name(a, b c) 形式的值拆为小写函数名与按顶层逗号分隔的参数。
func functionArgs(v string) (string, [][]token, bool) {
	toks := trimSpace(lexValue(v))
	if len(toks) < 2 || toks[0].tt != css.FunctionToken || toks[len(toks)-1].tt != css.RightParenthesisToken {
		return "", nil, false
	}
	name := strings.ToLower(strings.TrimSuffix(toks[0].data, "("))
	var args [][]token
	var cur []token
	depth := 0
	for _, t := range toks[1 : len(toks)-1] {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth == 0 {
				// 右括号提前闭合，说明末尾还有函数之外的内容
				return "", nil, false
			}
			depth--
		case css.CommaToken:
			if depth == 0 {
				args = append(args, trimSpace(cur))
				cur = nil
				continue
			}
		}
		cur = append(cur, t)
	}
	if depth != 0 {
		return "", nil, false
	}
	return name, append(args, trimSpace(cur)), true
}

// firstColor 从复合值（例如 linear-gradient）中取第一个可识别的颜色。
func (s *computedStyle) firstColor(v string) (Color, bool) {
	for _, part := range splitValue(v) {
		if c, ok := s.parseColor(part); ok {
			return c, true
		}
		name, args, ok := functionArgs(part)
		if !ok || name == "rgb" || name == "rgba" {
			continue
		}
		for _, arg := range args {
			for _, tok := range splitValue(joinTokens(arg)) {
				if c, ok := s.parseColor(tok); ok {
					return c, true
				}
			}
		}
	}
	return Color{}, false
}

func (s *computedStyle) parseColor(v string) (Color, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "currentcolor" {
		return s.color, true
	}
	return ParseColor(v)
}

// ParseColor 解析 #rgb、#rgba、#rrggbb、#rrggbbaa、rgb()、rgba() 与 CSS 颜色名。
func ParseColor(value string) (Color, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	toks := lexValue(v)
	if len(toks) == 0 {
		return Color{}, false
	}
	switch toks[0].tt {
	case css.HashToken:
		if len(toks) == 1 {
			return parseHexColor(toks[0].data[1:])
		}
	case css.IdentToken:
		if len(toks) != 1 {
			return Color{}, false
		}
		if v == "transparent" {
			return Color{}, true
		}
		if c, ok := colornames.Map[v]; ok {
			return Color{R: int(c.R), G: int(c.G), B: int(c.B), A: 1}, true
		}
	case css.FunctionToken:
		return parseRGBFunc(v)
	}
	return Color{}, false
}

func parseHexColor(h string) (Color, bool) {
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	if len(h) != 6 && len(h) != 8 {
		return Color{}, false
	}
	n, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return Color{}, false
	}
	if len(h) == 6 {
		return Color{R: int(n >> 16 & 0xff), G: int(n >> 8 & 0xff), B: int(n & 0xff), A: 1}, true
	}
	return Color{R: int(n >> 24 & 0xff), G: int(n >> 16 & 0xff), B: int(n >> 8 & 0xff), A: float64(n&0xff) / 255}, true
}

// parseRGBFunc 同时接受逗号分隔的旧语法与 rgb(r g b / a) 的空格语法。
func parseRGBFunc(v string) (Color, bool) {
	name, args, ok := functionArgs(v)
	if !ok || (name != "rgb" && name != "rgba") {
		return Color{}, false
	}
	var chans []token
	for _, arg := range args {
		for _, t := range arg {
			switch {
			case t.tt == css.WhitespaceToken:
			case t.tt == css.DelimToken && t.data == "/":
			case t.tt == css.NumberToken || t.tt == css.PercentageToken:
				chans = append(chans, t)
			default:
				return Color{}, false
			}
		}
	}
	if len(chans) != 3 && len(chans) != 4 {
		return Color{}, false
	}
	var ch [3]int
	for i := 0; i < 3; i++ {
		f, ok := parseChannel(chans[i], 255)
		if !ok {
			return Color{}, false
		}
		ch[i] = int(math.Round(math.Max(0, math.Min(255, f))))
	}
	alpha := 1.0
	if len(chans) == 4 {
		f, ok := parseChannel(chans[3], 1)
		if !ok {
			return Color{}, false
		}
		alpha = math.Max(0, math.Min(1, f))
	}
	return Color{R: ch[0], G: ch[1], B: ch[2], A: alpha}, true
}

// parseChannel 解析数字或百分比，百分比按 scale 换算。
func parseChannel(t token, scale float64) (float64, bool) {
	if t.tt == css.PercentageToken {
		f, err := strconv.ParseFloat(strings.TrimSuffix(t.data, "%"), 64)
		if err != nil {
			return 0, false
		}
		return f / 100 * scale, true
	}
	f, err := strconv.ParseFloat(t.data, 64)
	return f, err == nil
}
