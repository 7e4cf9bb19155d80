package layout

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ByLCY/ogimage/markup"
)

// computedStyle 是某个盒子最终生效的样式，长度已尽量换算为 px。
type computedStyle struct {
	// 非继承属性
	display     string // flex / none / contents
	direction   string // row / column
	reverse     bool
	justify     string
	alignItems  string
	alignSelf   string
	grow        float64
	shrink      float64
	basis       *Length
	width       *Length
	height      *Length
	rowGap      float64
	columnGap   float64
	padding     [4]float64 // top right bottom left
	margin      [4]float64
	background  *Color
	borderWidth float64
	borderColor *Color
	radius      Length
	opacity     float64

	// 继承属性
	color      Color
	fontSize   float64
	fontWeight int
	fontStyle  string
	fontFamily []string
	lineHeight LineHeightSpec
	textAlign  string
	wrap       string
	alpha      float64 // 祖先 opacity 的累积
}

// rootStyle 返回根元素的父样式，即所有继承属性的初始值。
func rootStyle() computedStyle {
	return computedStyle{
		display:    "flex",
		direction:  "row",
		justify:    "flex-start",
		alignItems: "stretch",
		shrink:     1,
		opacity:    1,
		color:      Color{A: 1},
		fontSize:   RootFontSize,
		fontWeight: 400,
		fontStyle:  "normal",
		textAlign:  "left",
		wrap:       "anywhere",
		alpha:      1,
	}
}

// inherit 复制继承属性，非继承属性恢复为初始值。
func (s computedStyle) inherit() computedStyle {
	out := rootStyle()
	out.color = s.color
	out.fontSize = s.fontSize
	out.fontWeight = s.fontWeight
	out.fontStyle = s.fontStyle
	out.fontFamily = s.fontFamily
	out.lineHeight = s.lineHeight
	out.textAlign = s.textAlign
	out.wrap = s.wrap
	out.alpha = s.alpha
	return out
}

func (s *computedStyle) hEdges() float64 { return s.padding[1] + s.padding[3] + 2*s.borderWidth }
func (s *computedStyle) vEdges() float64 { return s.padding[0] + s.padding[2] + 2*s.borderWidth }
func (s *computedStyle) hMargin() float64 { return s.margin[1] + s.margin[3] }
func (s *computedStyle) vMargin() float64 { return s.margin[0] + s.margin[2] }
func (s *computedStyle) isRow() bool     { return s.direction == "row" }

func (s *computedStyle) font() FontSpec {
	return FontSpec{Family: s.fontFamily, Weight: s.fontWeight, Style: s.fontStyle}
}

func (s *computedStyle) lineHeightPx() float64 {
	return s.lineHeight.Resolve(s.fontSize)
}

// tagDefaults 是常见标签的默认样式，行内 style 会覆盖它们。
var tagDefaults = map[string]map[string]string{
	"h1":     {"font-size": "2em", "font-weight": "bold"},
	"h2":     {"font-size": "1.5em", "font-weight": "bold"},
	"h3":     {"font-size": "1.17em", "font-weight": "bold"},
	"h4":     {"font-size": "1em", "font-weight": "bold"},
	"h5":     {"font-size": "0.83em", "font-weight": "bold"},
	"h6":     {"font-size": "0.67em", "font-weight": "bold"},
	"strong": {"font-weight": "bold"},
	"b":      {"font-weight": "bold"},
	"em":     {"font-style": "italic"},
	"i":      {"font-style": "italic"},
}

// 简写属性先于普通属性应用，这样 padding-left 可以覆盖 padding。
var shorthands = []string{"flex", "padding", "margin", "border", "background", "gap"}

// computeStyle 计算元素的最终样式。
func computeStyle(n *markup.Node, parent computedStyle) (computedStyle, error) {
	decls := map[string]string{}
	for k, v := range tagDefaults[n.Tag] {
		decls[k] = v
	}
	for k, v := range n.Style {
		decls[markup.CSSName(k)] = strings.TrimSpace(v)
	}

	s := parent.inherit()
	if v, ok := decls["font-size"]; ok {
		s.applyFontSize(v, parent.fontSize)
		delete(decls, "font-size")
	}
	for _, k := range shorthands {
		if v, ok := decls[k]; ok {
			if err := s.apply(k, v); err != nil {
				return s, err
			}
			delete(decls, k)
		}
	}
	keys := make([]string, 0, len(decls))
	for k := range decls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.apply(k, decls[k]); err != nil {
			return s, err
		}
	}
	s.alpha = parent.alpha * s.opacity
	if s.reverse {
		switch s.justify {
		case "flex-start", "start":
			s.justify = "flex-end"
		case "flex-end", "end":
			s.justify = "flex-start"
		}
	}
	return s, nil
}

func (s *computedStyle) applyFontSize(v string, parentSize float64) {
	switch strings.ToLower(v) {
	case "larger":
		s.fontSize = parentSize * 1.2
		return
	case "smaller":
		s.fontSize = parentSize / 1.2
		return
	}
	if l, ok := ParseLength(v); ok && l.Value >= 0 {
		// em 与 % 相对父元素字号
		s.fontSize = l.Resolve(parentSize, parentSize)
	}
}

// px 将长度换算为 px，百分比在这里不支持，按 0 处理。
func (s *computedStyle) px(v string) (float64, bool) {
	l, ok := ParseLength(v)
	if !ok {
		return 0, false
	}
	if l.IsRelative() {
		return 0, true
	}
	return l.Resolve(s.fontSize, 0), true
}

// apply 应用单条声明。未知属性与无法解析的值被忽略，只有不支持的 display 会报错。
func (s *computedStyle) apply(prop, value string) error {
	v := strings.ToLower(value)
	switch prop {
	case "display":
		switch v {
		case "flex", "block", "inline", "inline-block", "inline-flex":
			s.display = "flex"
			if v == "block" {
				s.direction = "column"
			}
		case "none", "contents":
			s.display = v
		default:
			return fmt.Errorf("%w: 不支持的 display 值 %q", ErrLayout, value)
		}
	case "flex-direction":
		switch v {
		case "row", "column":
			s.direction, s.reverse = v, false
		case "row-reverse", "column-reverse":
			s.direction, s.reverse = strings.TrimSuffix(v, "-reverse"), true
		}
	case "justify-content":
		s.justify = v
	case "align-items":
		s.alignItems = v
	case "align-self":
		s.alignSelf = v
	case "flex-grow":
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			s.grow = f
		}
	case "flex-shrink":
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			s.shrink = f
		}
	case "flex-basis":
		if l, ok := ParseLength(v); ok {
			s.basis = &l
		}
	case "flex":
		s.applyFlex(v)
	case "width":
		s.width = lengthPtr(v)
	case "height":
		s.height = lengthPtr(v)
	case "gap":
		parts := strings.Fields(v)
		if len(parts) > 0 {
			if g, ok := s.px(parts[0]); ok {
				s.rowGap, s.columnGap = g, g
			}
		}
		if len(parts) > 1 {
			if g, ok := s.px(parts[1]); ok {
				s.columnGap = g
			}
		}
	case "row-gap":
		if g, ok := s.px(v); ok {
			s.rowGap = g
		}
	case "column-gap":
		if g, ok := s.px(v); ok {
			s.columnGap = g
		}
	case "padding":
		s.padding = s.edges(v, s.padding)
	case "margin":
		s.margin = s.edges(v, s.margin)
	case "padding-top", "padding-right", "padding-bottom", "padding-left":
		if f, ok := s.px(v); ok {
			s.padding[edgeIndex(prop)] = f
		}
	case "margin-top", "margin-right", "margin-bottom", "margin-left":
		if f, ok := s.px(v); ok {
			s.margin[edgeIndex(prop)] = f
		}
	case "background", "background-color":
		if c, ok := s.parseColor(v); ok {
			s.background = &c
		} else if c, ok := s.firstColor(v); ok {
			s.background = &c
		}
	case "color":
		if c, ok := s.parseColor(v); ok {
			s.color = c
		}
	case "border":
		s.applyBorder(v)
	case "border-width":
		if f, ok := s.px(v); ok {
			s.borderWidth = f
		}
	case "border-color":
		if c, ok := s.parseColor(v); ok {
			s.borderColor = &c
		}
	case "border-radius":
		if l, ok := ParseLength(strings.Fields(v + " 0")[0]); ok {
			s.radius = l
		}
	case "opacity":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.opacity = math.Max(0, math.Min(1, f))
		}
	case "font-weight":
		s.fontWeight = parseFontWeight(v, s.fontWeight)
	case "font-style":
		if v == "italic" || v == "oblique" || v == "normal" {
			s.fontStyle = v
		}
	case "font-family":
		s.fontFamily = parseFontFamily(value)
	case "line-height":
		if lh, ok := ParseLineHeight(v); ok {
			s.lineHeight = lh
		}
	case "text-align":
		switch v {
		case "start":
			s.textAlign = "left"
		case "end":
			s.textAlign = "right"
		case "left", "right", "center":
			s.textAlign = v
		}
	case "white-space":
		switch v {
		case "nowrap", "pre":
			s.wrap = "nowrap"
		case "normal", "pre-wrap", "pre-line":
			s.wrap = "anywhere"
		}
	case "word-break", "overflow-wrap":
		switch v {
		case "break-all":
			s.wrap = "break-word"
		case "break-word", "anywhere", "normal":
			s.wrap = "anywhere"
		}
	}
	return nil
}

func (s *computedStyle) applyFlex(v string) {
	switch v {
	case "none":
		s.grow, s.shrink, s.basis = 0, 0, nil
		return
	case "auto":
		s.grow, s.shrink, s.basis = 1, 1, nil
		return
	}
	parts := strings.Fields(v)
	zero := Length{Unit: UnitPX}
	s.grow, s.shrink, s.basis = 0, 1, &zero
	for i, p := range parts {
		if f, err := strconv.ParseFloat(p, 64); err == nil && i < 2 {
			if i == 0 {
				s.grow = f
			} else {
				s.shrink = f
			}
			continue
		}
		if l, ok := ParseLength(p); ok {
			s.basis = &l
		} else if p == "auto" {
			s.basis = nil
		}
	}
}

func (s *computedStyle) applyBorder(v string) {
	for _, tok := range splitValue(v) {
		switch tok {
		case "none", "hidden":
			s.borderWidth = 0
			continue
		case "solid", "dashed", "dotted", "double":
			continue
		}
		if f, ok := s.px(tok); ok {
			s.borderWidth = f
			continue
		}
		if c, ok := s.parseColor(tok); ok {
			s.borderColor = &c
		}
	}
}

// edges 解析 1 到 4 个值的 padding/margin 简写。
func (s *computedStyle) edges(v string, prev [4]float64) [4]float64 {
	parts := strings.Fields(v)
	vals := make([]float64, 0, 4)
	for _, p := range parts {
		f, ok := s.px(p)
		if !ok {
			f = 0
		}
		vals = append(vals, f)
	}
	switch len(vals) {
	case 1:
		return [4]float64{vals[0], vals[0], vals[0], vals[0]}
	case 2:
		return [4]float64{vals[0], vals[1], vals[0], vals[1]}
	case 3:
		return [4]float64{vals[0], vals[1], vals[2], vals[1]}
	case 4:
		return [4]float64{vals[0], vals[1], vals[2], vals[3]}
	default:
		return prev
	}
}

func edgeIndex(prop string) int {
	switch {
	case strings.HasSuffix(prop, "-top"):
		return 0
	case strings.HasSuffix(prop, "-right"):
		return 1
	case strings.HasSuffix(prop, "-bottom"):
		return 2
	default:
		return 3
	}
}

func lengthPtr(v string) *Length {
	l, ok := ParseLength(v)
	if !ok {
		return nil
	}
	return &l
}

func parseFontWeight(v string, parent int) int {
	switch v {
	case "normal":
		return 400
	case "bold":
		return 700
	case "bolder":
		return min(parent+300, 900)
	case "lighter":
		return max(parent-300, 100)
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 1000 {
		return n
	}
	return parent
}

func parseFontFamily(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"'`)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
