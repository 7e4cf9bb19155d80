package canvasrenderer

import (
	"math"
	"strings"
	"unicode"

	"github.com/ByLCY/ogimage/layout"
)

var _ layout.Typesetter = (*session)(nil)

// textMeasurer 返回一段文本的宽度（px）。
type textMeasurer interface {
	TextWidth(text string) float64
}

// LayoutLines 实现 layout.Typesetter 接口，使用贪心换行算法。
// 约定：宽度、字号与行高均为 px；每行高度即行高。
func (s *session) LayoutLines(content string, width float64, font layout.FontSpec, fontSize, lineHeight float64, wrap string) ([]layout.TextLine, error) {
	m := measurer{s: s, chain: s.chain(font), size: fontSize}
	if wrap == "" {
		wrap = "anywhere"
	}
	// 与相邻元素之间的边界空格保留在首行行首与末行行尾
	core := strings.Trim(content, " ")
	lead := core != "" && strings.HasPrefix(content, " ")
	trail := core != "" && strings.HasSuffix(content, " ")
	lines := greedyWrapTokens(core, width, m, wrap)
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: "", Width: 0}}
	}
	if lead {
		lines[0].Content = " " + lines[0].Content
		lines[0].Width += m.TextWidth(" ")
	}
	if trail {
		last := &lines[len(lines)-1]
		last.Content += " "
		last.Width += m.TextWidth(" ")
	}
	for i := range lines {
		lines[i].Height = lineHeight
	}
	return lines, nil
}

func greedyWrapTokens(content string, width float64, m textMeasurer, wrap string) []layout.TextLine {
	limit := width
	if limit <= 0 {
		limit = math.MaxFloat64
	}
	// 每行去掉首尾空白后重新测量，保证居中与右对齐准确
	line := func(s string) layout.TextLine {
		s = strings.TrimFunc(s, unicode.IsSpace)
		return layout.TextLine{Content: s, Width: m.TextWidth(s)}
	}
	// nowrap：仅按显式换行划分，不基于宽度折行
	if wrap == "nowrap" {
		parts := strings.Split(content, "\n")
		lines := make([]layout.TextLine, 0, len(parts))
		for _, p := range parts {
			lines = append(lines, line(p))
		}
		return lines
	}
	// break-word：忽略空白机会，纯按宽度切分（但仍然尊重显式换行）
	if wrap == "break-word" {
		var lines []layout.TextLine
		var builder strings.Builder
		current := 0.0
		emit := func(force bool) {
			if builder.Len() == 0 {
				if force {
					lines = append(lines, layout.TextLine{})
				}
				return
			}
			lines = append(lines, line(builder.String()))
			builder.Reset()
			current = 0
		}
		for _, r := range content {
			if r == '\r' {
				continue
			}
			if r == '\n' {
				emit(true)
				continue
			}
			s := string(r)
			cw := m.TextWidth(s)
			if current > 0 && current+cw > limit {
				emit(false)
			}
			builder.WriteString(s)
			current += cw
		}
		emit(true)
		return lines
	}
	// 默认（anywhere/normal 等）：优先在空白处分割，超过限制时在词内拆分
	tokens := tokenizeContent(content)
	var lines []layout.TextLine
	var builder strings.Builder
	currentWidth := 0.0
	emit := func(force bool) {
		if strings.TrimFunc(builder.String(), unicode.IsSpace) == "" {
			if force {
				lines = append(lines, layout.TextLine{})
			}
			builder.Reset()
			currentWidth = 0
			return
		}
		lines = append(lines, line(builder.String()))
		builder.Reset()
		currentWidth = 0
	}
	appendToken := func(token string, tokenWidth float64) {
		// 行首的空白不计入宽度
		if builder.Len() == 0 && strings.TrimFunc(token, unicode.IsSpace) == "" {
			return
		}
		builder.WriteString(token)
		currentWidth += tokenWidth
	}
	for _, token := range tokens {
		if token == "\n" {
			emit(true)
			continue
		}
		tokenWidth := m.TextWidth(token)
		isBlank := strings.TrimFunc(token, unicode.IsSpace) == ""
		if currentWidth > 0 && currentWidth+tokenWidth > limit && !isBlank {
			emit(false)
		}
		if tokenWidth <= limit || isBlank {
			appendToken(token, tokenWidth)
			continue
		}
		for _, chunk := range splitTokenByWidth(token, limit, m) {
			chunkWidth := m.TextWidth(chunk)
			if currentWidth > 0 && currentWidth+chunkWidth > limit {
				emit(false)
			}
			appendToken(chunk, chunkWidth)
		}
	}
	emit(true)
	return lines
}

func tokenizeContent(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		tokens = append(tokens, builder.String())
		builder.Reset()
	}
	for _, r := range s {
		if r == '\r' {
			continue
		}
		if r == '\n' {
			flush()
			tokens = append(tokens, "\n")
			lastWasSpace = false
			continue
		}
		isSpace := unicode.IsSpace(r)
		// 中日韩字符之间可以断行，每个字符单独成词
		if isBreakAnywhere(r) {
			flush()
			tokens = append(tokens, string(r))
			lastWasSpace = false
			continue
		}
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

func isBreakAnywhere(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func splitTokenByWidth(token string, limit float64, m textMeasurer) []string {
	if limit <= 0 || limit == math.MaxFloat64 {
		return []string{token}
	}
	var parts []string
	var builder strings.Builder
	for _, r := range token {
		builder.WriteRune(r)
		if m.TextWidth(builder.String()) > limit && builder.Len() > len(string(r)) {
			runes := []rune(builder.String())
			parts = append(parts, string(runes[:len(runes)-1]))
			builder.Reset()
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
