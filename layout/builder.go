package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ByLCY/ogimage/markup"
)

// ErrLayout 表示元素树或样式组合无法布局。
var ErrLayout = errors.New("layout: 布局失败")

// debugOutline 是调试模式下盒子描边的颜色。
var debugOutline = Color{R: 255, G: 0, B: 0, A: 0.6}

// box 是布局树的节点。hasText 为真时盒子只包含一段文本。
type box struct {
	tag      string
	style    computedStyle
	children []*box
	text     string
	hasText  bool

	// 缓存：内容最大宽度与按宽度排版的行
	maxWidth *float64
	measured map[float64][]TextLine

	x, y, w, h float64
	lines      []TextLine
}

// Build 根据元素树生成画布尺寸与可绘制元素。
func Build(tree *markup.Node, opts BuildOptions) (*Result, error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: 元素树为空", ErrLayout)
	}
	if opts.Typesetter == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}

	roots, err := buildBoxes(tree, rootStyle())
	if err != nil {
		return nil, err
	}
	var root *box
	switch len(roots) {
	case 0:
		// display:none 的根元素得到一张空白画布
		root = &box{tag: "div", style: rootStyle()}
	case 1:
		root = roots[0]
	default:
		root = &box{tag: "div", style: rootStyle(), children: roots}
	}

	b := &builder{ts: opts.Typesetter}
	width, hasWidth := opts.Constraint.Width()
	height, hasHeight := opts.Constraint.Height()
	if hasWidth && !(width > 0) {
		return nil, fmt.Errorf("%w: 画布宽度必须为正数，实际 %g", ErrLayout, width)
	}
	if hasHeight && !(height > 0) {
		return nil, fmt.Errorf("%w: 画布高度必须为正数，实际 %g", ErrLayout, height)
	}

	rs := &root.style
	if !hasWidth {
		width = math.Ceil(b.maxContent(root) + rs.hMargin())
	}
	rootW, ok := definite(rs.width, rs.fontSize, width)
	if !ok {
		rootW = math.Max(width-rs.hMargin(), 0)
	}
	if !hasHeight {
		height = math.Ceil(b.heightFor(root, rootW, -1) + rs.vMargin())
	}
	rootH, ok := definite(rs.height, rs.fontSize, height)
	if !ok {
		rootH = math.Max(height-rs.vMargin(), 0)
	}
	if b.err != nil {
		return nil, b.err
	}
	if !(width > 0) || !(height > 0) {
		return nil, fmt.Errorf("%w: 内容尺寸为空，无法确定画布大小（%gx%g）", ErrLayout, width, height)
	}

	b.place(root, rs.margin[3], rs.margin[0], rootW, rootH)
	if b.err != nil {
		return nil, b.err
	}

	res := &Result{Width: width, Height: height}
	b.paint(root, res, opts.Debug)
	return res, nil
}

// buildBoxes 将元素转换为布局盒子；display:none 返回空，display:contents 返回子盒子。
func buildBoxes(n *markup.Node, parent computedStyle) ([]*box, error) {
	if n == nil {
		return nil, nil
	}
	if n.IsText() {
		if n.Text == "" {
			return nil, nil
		}
		return []*box{{style: parent.inherit(), text: n.Text, hasText: true}}, nil
	}
	st, err := computeStyle(n, parent)
	if err != nil {
		return nil, err
	}
	if st.display == "none" {
		return nil, nil
	}

	b := &box{tag: n.Tag, style: st}
	if text, ok := textOnly(n); ok {
		b.text, b.hasText = text, true
		return []*box{b}, nil
	}
	for _, c := range n.Children {
		kids, err := buildBoxes(c, st)
		if err != nil {
			return nil, err
		}
		b.children = append(b.children, kids...)
	}
	if st.reverse {
		for i, j := 0, len(b.children)-1; i < j; i, j = i+1, j-1 {
			b.children[i], b.children[j] = b.children[j], b.children[i]
		}
	}
	if st.display == "contents" {
		return b.children, nil
	}
	return []*box{b}, nil
}

// textOnly 判断元素是否只包含文本子节点；是则把文本拼接为一段并合并空白。
func textOnly(n *markup.Node) (string, bool) {
	if len(n.Children) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		if !c.IsText() {
			return "", false
		}
		parts = append(parts, c.Text)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), true
}

// definite 在长度可以确定时返回 px 值；ref < 0 表示百分比的参照不确定。
func definite(l *Length, fontSize, ref float64) (float64, bool) {
	if l == nil {
		return 0, false
	}
	if l.IsRelative() && ref < 0 {
		return 0, false
	}
	return math.Max(l.Resolve(fontSize, ref), 0), true
}

type builder struct {
	ts  Typesetter
	err error
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// textLines 以内容宽度 width 排版盒子文本；width <= 0 表示不限宽。
func (b *builder) textLines(bx *box, width float64) []TextLine {
	if width < 0 {
		width = 0
	}
	if lines, ok := bx.measured[width]; ok {
		return lines
	}
	st := &bx.style
	lh := st.lineHeightPx()
	lines, err := b.ts.LayoutLines(bx.text, width, st.font(), st.fontSize, lh, st.wrap)
	if err != nil {
		b.fail(fmt.Errorf("排版文本 %q 失败: %w", bx.text, err))
		return nil
	}
	for i := range lines {
		lines[i].Height = lh
	}
	if bx.measured == nil {
		bx.measured = map[float64][]TextLine{}
	}
	bx.measured[width] = lines
	return lines
}

// maxContent 返回盒子在不受宽度限制时的边框盒宽度。
func (b *builder) maxContent(bx *box) float64 {
	if bx.maxWidth != nil {
		return *bx.maxWidth
	}
	st := &bx.style
	w, ok := definite(st.width, st.fontSize, -1)
	if !ok {
		content := 0.0
		switch {
		case bx.hasText:
			for _, ln := range b.textLines(bx, 0) {
				content = math.Max(content, ln.Width)
			}
		case st.isRow():
			for _, c := range bx.children {
				content += b.maxContent(c) + c.style.hMargin()
			}
			content += gaps(st.columnGap, len(bx.children))
		default:
			for _, c := range bx.children {
				content = math.Max(content, b.maxContent(c)+c.style.hMargin())
			}
		}
		w = content + st.hEdges()
	}
	bx.maxWidth = &w
	return w
}

// heightFor 返回边框盒宽度为 w 时盒子的边框盒高度；cbHeight < 0 表示容器高度不确定。
func (b *builder) heightFor(bx *box, w, cbHeight float64) float64 {
	st := &bx.style
	if h, ok := definite(st.height, st.fontSize, cbHeight); ok {
		return h
	}
	cw := math.Max(w-st.hEdges(), 0)
	content := 0.0
	switch {
	case bx.hasText:
		content = float64(len(b.textLines(bx, cw))) * st.lineHeightPx()
	case st.isRow():
		widths := b.rowWidths(bx, cw)
		for i, c := range bx.children {
			content = math.Max(content, b.heightFor(c, widths[i], -1)+c.style.vMargin())
		}
	default:
		for _, c := range bx.children {
			content += b.heightFor(c, b.crossWidth(bx, c, cw), -1) + c.style.vMargin()
		}
		content += gaps(st.rowGap, len(bx.children))
	}
	return content + st.vEdges()
}

func gaps(gap float64, n int) float64 {
	if n < 2 {
		return 0
	}
	return gap * float64(n-1)
}

// rowWidths 计算横向容器中每个子盒子的边框盒宽度（flex-grow / flex-shrink）。
func (b *builder) rowWidths(bx *box, cw float64) []float64 {
	n := len(bx.children)
	widths := make([]float64, n)
	used := gaps(bx.style.columnGap, n)
	for i, c := range bx.children {
		cs := &c.style
		if l, ok := definite(cs.basis, cs.fontSize, cw); ok && cs.basis != nil {
			widths[i] = l
		} else if l, ok := definite(cs.width, cs.fontSize, cw); ok {
			widths[i] = l
		} else {
			widths[i] = b.maxContent(c)
		}
		used += widths[i] + cs.hMargin()
	}
	free := cw - used
	weights := make([]float64, n)
	total := 0.0
	for i, c := range bx.children {
		if free > 0 {
			weights[i] = c.style.grow
		} else {
			weights[i] = c.style.shrink * widths[i]
		}
		total += weights[i]
	}
	if free == 0 || total <= 0 {
		return widths
	}
	for i, c := range bx.children {
		widths[i] = math.Max(widths[i]+free*weights[i]/total, c.style.hEdges())
	}
	return widths
}

// columnHeights 计算纵向容器中每个子盒子的边框盒高度；ch 为内容高度。
func (b *builder) columnHeights(bx *box, widths []float64, ch float64) []float64 {
	n := len(bx.children)
	heights := make([]float64, n)
	used := gaps(bx.style.rowGap, n)
	weights := make([]float64, n)
	for i, c := range bx.children {
		cs := &c.style
		if l, ok := definite(cs.basis, cs.fontSize, ch); ok && cs.basis != nil {
			heights[i] = l
		} else {
			heights[i] = b.heightFor(c, widths[i], ch)
		}
		used += heights[i] + cs.vMargin()
	}
	free := ch - used
	total := 0.0
	for i, c := range bx.children {
		cs := &c.style
		switch {
		case free > 0:
			weights[i] = cs.grow
		case cs.height != nil || cs.basis != nil:
			// 高度由内容决定的盒子不收缩，避免文字重叠
			weights[i] = cs.shrink * heights[i]
		}
		total += weights[i]
	}
	if free == 0 || total <= 0 {
		return heights
	}
	for i, c := range bx.children {
		heights[i] = math.Max(heights[i]+free*weights[i]/total, c.style.vEdges())
	}
	return heights
}

// crossWidth 返回纵向容器中子盒子的宽度。
func (b *builder) crossWidth(parent, c *box, cw float64) float64 {
	cs := &c.style
	if w, ok := definite(cs.width, cs.fontSize, cw); ok {
		return w
	}
	avail := math.Max(cw-cs.hMargin(), 0)
	if alignOf(parent, c) == "stretch" {
		return avail
	}
	return math.Min(b.maxContent(c), avail)
}

func alignOf(parent, c *box) string {
	a := c.style.alignSelf
	if a == "" || a == "auto" {
		a = parent.style.alignItems
	}
	switch a {
	case "flex-start", "start", "self-start", "baseline", "normal":
		return "flex-start"
	case "flex-end", "end", "self-end":
		return "flex-end"
	case "center":
		return "center"
	default:
		return "stretch"
	}
}

// justifyOffsets 返回主轴起始偏移与子盒子之间的额外间距。
func justifyOffsets(justify string, free float64, n int) (float64, float64) {
	switch justify {
	case "flex-end", "end", "right":
		return free, 0
	case "center":
		return free / 2, 0
	case "space-between":
		if free < 0 || n < 2 {
			return 0, 0
		}
		return 0, free / float64(n-1)
	case "space-around":
		if free < 0 {
			return free / 2, 0
		}
		return free / float64(n) / 2, free / float64(n)
	case "space-evenly":
		if free < 0 {
			return free / 2, 0
		}
		return free / float64(n+1), free / float64(n+1)
	default:
		return 0, 0
	}
}

func crossOffset(align string, avail, size float64) float64 {
	switch align {
	case "flex-end":
		return avail - size
	case "center":
		return (avail - size) / 2
	default:
		return 0
	}
}

// place 确定盒子的位置与尺寸，并递归放置子盒子。
func (b *builder) place(bx *box, x, y, w, h float64) {
	bx.x, bx.y, bx.w, bx.h = x, y, w, h
	st := &bx.style
	cx := x + st.padding[3] + st.borderWidth
	cy := y + st.padding[0] + st.borderWidth
	cw := math.Max(w-st.hEdges(), 0)
	ch := math.Max(h-st.vEdges(), 0)
	if bx.hasText {
		bx.lines = b.textLines(bx, cw)
		return
	}
	n := len(bx.children)
	if n == 0 {
		return
	}

	if st.isRow() {
		widths := b.rowWidths(bx, cw)
		total := gaps(st.columnGap, n)
		for i, c := range bx.children {
			total += widths[i] + c.style.hMargin()
		}
		offset, between := justifyOffsets(st.justify, cw-total, n)
		pos := cx + offset
		for i, c := range bx.children {
			cs := &c.style
			align := alignOf(bx, c)
			height, ok := definite(cs.height, cs.fontSize, ch)
			if !ok {
				if align == "stretch" {
					height = math.Max(ch-cs.vMargin(), 0)
				} else {
					height = b.heightFor(c, widths[i], ch)
				}
			}
			top := cy + cs.margin[0] + crossOffset(align, ch, height+cs.vMargin())
			b.place(c, pos+cs.margin[3], top, widths[i], height)
			pos += widths[i] + cs.hMargin() + st.columnGap + between
		}
		return
	}

	widths := make([]float64, n)
	for i, c := range bx.children {
		widths[i] = b.crossWidth(bx, c, cw)
	}
	heights := b.columnHeights(bx, widths, ch)
	total := gaps(st.rowGap, n)
	for i, c := range bx.children {
		total += heights[i] + c.style.vMargin()
	}
	offset, between := justifyOffsets(st.justify, ch-total, n)
	pos := cy + offset
	for i, c := range bx.children {
		cs := &c.style
		left := cx + cs.margin[3] + crossOffset(alignOf(bx, c), cw, widths[i]+cs.hMargin())
		b.place(c, left, pos+cs.margin[0], widths[i], heights[i])
		pos += heights[i] + cs.vMargin() + st.rowGap + between
	}
}

// paint 按树的先序把背景、边框与文本写入结果。
func (b *builder) paint(bx *box, res *Result, debug bool) {
	st := &bx.style
	radius := st.radius.Resolve(st.fontSize, math.Min(bx.w, bx.h))
	radius = math.Max(0, math.Min(radius, math.Min(bx.w, bx.h)/2))

	if st.background != nil && st.background.A > 0 {
		fill := withAlpha(*st.background, st.alpha)
		res.Rects = append(res.Rects, Rect{X: bx.x, Y: bx.y, Width: bx.w, Height: bx.h, Radius: radius, Fill: &fill})
	}
	if bw := st.borderWidth; bw > 0 {
		col := st.color
		if st.borderColor != nil {
			col = *st.borderColor
		}
		stroke := withAlpha(col, st.alpha)
		res.Rects = append(res.Rects, Rect{
			X: bx.x + bw/2, Y: bx.y + bw/2,
			Width: math.Max(bx.w-bw, 0), Height: math.Max(bx.h-bw, 0),
			Radius: math.Max(radius-bw/2, 0), Stroke: &stroke, StrokeWidth: bw,
		})
	}
	if bx.hasText && len(bx.lines) > 0 {
		lh := st.lineHeightPx()
		res.Texts = append(res.Texts, TextBox{
			Content:    bx.text,
			X:          bx.x + st.padding[3] + st.borderWidth,
			Y:          bx.y + st.padding[0] + st.borderWidth,
			Width:      math.Max(bx.w-st.hEdges(), 0),
			Height:     float64(len(bx.lines)) * lh,
			LineHeight: lh,
			Font:       st.font(),
			FontSize:   st.fontSize,
			Color:      withAlpha(st.color, st.alpha),
			Lines:      bx.lines,
			Align:      st.textAlign,
			Wrap:       st.wrap,
		})
	}
	if debug {
		outline := debugOutline
		res.Outlines = append(res.Outlines, Rect{X: bx.x, Y: bx.y, Width: bx.w, Height: bx.h, Stroke: &outline, StrokeWidth: 1})
	}
	for _, c := range bx.children {
		b.paint(c, res, debug)
	}
}

func withAlpha(c Color, alpha float64) Color {
	c.A *= alpha
	return c
}
