package canvasrenderer

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/ogimage/engine"
	"github.com/ByLCY/ogimage/fonts"
	"github.com/ByLCY/ogimage/layout"
	"github.com/ByLCY/ogimage/markup"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init 失败: %v", err)
	}
	return e
}

func newTestSession(t *testing.T, assets ...fonts.Asset) *session {
	t.Helper()
	e := newTestEngine(t)
	s, err := newSession(assets, e.base)
	if err != nil {
		t.Fatalf("newSession 失败: %v", err)
	}
	return s
}

var bodyFont = layout.FontSpec{Weight: 400, Style: "normal"}

func TestInitIsGuarded(t *testing.T) {
	e := New()
	if e.Ready() {
		t.Fatalf("新建引擎不应处于就绪状态")
	}
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("首次 Init 失败: %v", err)
	}
	if err := e.Init(context.Background()); !errors.Is(err, engine.ErrAlreadyInitialized) {
		t.Fatalf("重复 Init 应返回 ErrAlreadyInitialized，实际 %v", err)
	}
	if !e.Ready() {
		t.Fatalf("Init 后应处于就绪状态")
	}
}

func TestLayoutRequiresInit(t *testing.T) {
	_, err := New().Layout(context.Background(), markup.El("div", nil), layout.Options{})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("未初始化时应返回 ErrNotInitialized，实际 %v", err)
	}
}

func TestLayoutLinesGreedyWrapsText(t *testing.T) {
	s := newTestSession(t)
	lines, err := s.LayoutLines("hello world again", 10, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %d", len(lines))
	}
	for _, ln := range lines {
		if ln.Height != 19.2 {
			t.Fatalf("每行高度应等于行高，实际 %g", ln.Height)
		}
	}
}

func TestGreedyWrapHonorsNewlines(t *testing.T) {
	s := newTestSession(t)
	lines, err := s.LayoutLines("foo\n\nbar", 1000, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines including blank, got %d", len(lines))
	}
	if lines[1].Content != "" {
		t.Fatalf("expected middle line to be blank, got %q", lines[1].Content)
	}
}

// TestGreedyWrapWidthLimit 验证每行宽度不超过限制（px）。
func TestGreedyWrapWidthLimit(t *testing.T) {
	s := newTestSession(t)
	limit := 80.0
	content := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	lines, err := s.LayoutLines(content, limit, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected the long word to be split, got %d lines", len(lines))
	}
	for i, ln := range lines {
		if ln.Width-limit > 1e-6 {
			t.Fatalf("line %d width exceeds limit: width=%g limit=%g", i, ln.Width, limit)
		}
	}
}

// 当第一行宽度与容器宽度恰好相等且后面紧跟一个显式换行时，不应产生额外的空行。
func TestNoBlankLineWhenEqualWidthThenNewline(t *testing.T) {
	s := newTestSession(t)
	first := "SAMPLE-A"
	measured, err := s.LayoutLines(first, 0, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("measure error: %v", err)
	}
	if len(measured) != 1 {
		t.Fatalf("unexpected measured lines: %d", len(measured))
	}
	limit := measured[0].Width
	if limit <= 0 {
		t.Fatalf("invalid measured width: %g", limit)
	}

	lines, err := s.LayoutLines(first+"\n"+"SAMPLE", limit, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if got := len(lines); got != 2 {
		t.Fatalf("expected 2 lines without blank, got %d", got)
	}
	if lines[0].Content != first || lines[1].Content != "SAMPLE" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestTrailingSpacesAreTrimmed(t *testing.T) {
	s := newTestSession(t)
	one, _ := s.LayoutLines("hello", 0, bodyFont, 16, 19.2, "")
	lines, err := s.LayoutLines("hello world", one[0].Width+1, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) != 2 || lines[0].Content != "hello" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if math.Abs(lines[0].Width-one[0].Width) > 1e-9 {
		t.Fatalf("行宽不应包含行尾空格: %g vs %g", lines[0].Width, one[0].Width)
	}
}

func TestNoWrapKeepsSingleLine(t *testing.T) {
	s := newTestSession(t)
	lines, err := s.LayoutLines("a b c d e f g", 5, bodyFont, 16, 19.2, "nowrap")
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("nowrap 不应折行，实际 %d 行", len(lines))
	}
}

func TestFontChainPrefersRequestedFamily(t *testing.T) {
	s := newTestSession(t,
		fonts.Asset{Name: "Body", Data: goregular.TTF, Weight: 400, Style: "normal"},
		fonts.Asset{Name: "Heading", Data: gobold.TTF, Weight: 700, Style: "normal"},
	)
	chain := s.chain(layout.FontSpec{Family: []string{"Heading"}, Weight: 400})
	if chain[0].name != "Heading" {
		t.Fatalf("应优先使用请求的字族，实际 %s", chain[0].name)
	}
	chain = s.chain(layout.FontSpec{Weight: 700})
	if chain[0].name != "Heading" {
		t.Fatalf("未指定字族时应选择字重最接近的字体，实际 %s", chain[0].name)
	}
	chain = s.chain(layout.FontSpec{Weight: 400})
	if chain[0].name != "Body" || chain[len(chain)-1].name != "Go" {
		t.Fatalf("回退链顺序不正确")
	}
}

func TestSplitRunsFallsBackPerRune(t *testing.T) {
	s := newTestSession(t)
	full := &fontEntry{name: "All", covers: func(rune) bool { return true }}
	chain := append([]*fontEntry{s.base[0]}, full)
	runs := splitRuns("Hi 日本", chain)
	if len(runs) != 2 {
		t.Fatalf("期望 2 段，实际 %d: %+v", len(runs), runs)
	}
	if runs[0].text != "Hi " || runs[0].entry != s.base[0] {
		t.Fatalf("拉丁字符应使用 Go 字体: %+v", runs[0])
	}
	if runs[1].text != "日本" || runs[1].entry != full {
		t.Fatalf("CJK 字符应回退到下一个字体: %+v", runs[1])
	}
}

func TestLayoutProducesSVG(t *testing.T) {
	e := newTestEngine(t)
	tree, err := markup.ParseString(`<div style="display:flex;background:#fff"><h1 style="color:#333">Hi</h1></div>`)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	svg, err := e.Layout(context.Background(), tree, layout.Options{Constraint: layout.WidthOnly(400)})
	if err != nil {
		t.Fatalf("Layout 失败: %v", err)
	}
	if !bytes.HasPrefix(svg, []byte(`<svg version="1.1" width="400" height="`)) {
		t.Fatalf("SVG 根元素不正确: %.120s", svg)
	}
	if !bytes.HasSuffix(svg, []byte("</svg>")) {
		t.Fatalf("SVG 未正确结束")
	}
	if !strings.Contains(string(svg), `fill="#333"`) || !strings.Contains(string(svg), `fill="#fff"`) {
		t.Fatalf("SVG 缺少背景或文字路径: %s", svg)
	}
}

func TestLayoutDebugDrawsOutlines(t *testing.T) {
	e := newTestEngine(t)
	tree := markup.El("div", nil, markup.El("p", nil, markup.Text("x")))
	svg, err := e.Layout(context.Background(), tree, layout.Options{Constraint: layout.Fixed(100, 50), Debug: true})
	if err != nil {
		t.Fatalf("Layout 失败: %v", err)
	}
	if got := strings.Count(string(svg), `stroke:#f00`); got != 2 {
		t.Fatalf("调试模式应绘制 2 个轮廓，实际 %d", got)
	}
}

func TestLayoutRejectsBadFont(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Layout(context.Background(), markup.El("div", nil), layout.Options{
		Fonts: []fonts.Asset{{Name: "Broken", Data: []byte("not a font")}},
	})
	if err == nil {
		t.Fatalf("无效字体数据应返回错误")
	}
}

func TestRenderKeepsTopLeftOrigin(t *testing.T) {
	s := newTestSession(t)
	red := layout.Color{R: 255, A: 1}
	out, err := s.Render(&layout.Result{
		Width: 100, Height: 80,
		Rects: []layout.Rect{{X: 10, Y: 20, Width: 30, Height: 40, Fill: &red}},
	})
	if err != nil {
		t.Fatalf("Render 失败: %v", err)
	}
	if !strings.Contains(string(out), `<path d="M10 20H40V60H10z" fill="#f00"/>`) {
		t.Fatalf("矩形坐标应以左上角为原点: %s", out)
	}
}

func TestRenderTranslucentFill(t *testing.T) {
	s := newTestSession(t)
	half := layout.Color{B: 255, A: 0.5}
	none := layout.Color{B: 255, A: 0}
	out, err := s.Render(&layout.Result{
		Width: 10, Height: 10,
		Rects: []layout.Rect{{Width: 10, Height: 10, Fill: &half}, {Width: 5, Height: 5, Fill: &none}},
	})
	if err != nil {
		t.Fatalf("Render 失败: %v", err)
	}
	if strings.Count(string(out), "<path") != 1 || !strings.Contains(string(out), `fill="rgba(`) {
		t.Fatalf("半透明填充应输出 rgba，完全透明的矩形不应输出: %s", out)
	}
}

func TestBoundarySpacesAreKept(t *testing.T) {
	s := newTestSession(t)
	word, _ := s.LayoutLines("Hello", 0, bodyFont, 16, 19.2, "")
	spaceWidth := measurer{s: s, chain: s.chain(bodyFont), size: 16}.TextWidth(" ")
	lines, err := s.LayoutLines("Hello ", 0, bodyFont, 16, 19.2, "")
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) != 1 || lines[0].Content != "Hello " {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if spaceWidth <= 0 || math.Abs(lines[0].Width-word[0].Width-spaceWidth) > 1e-6 {
		t.Fatalf("行尾边界空格应计入宽度: %g vs %g+%g", lines[0].Width, word[0].Width, spaceWidth)
	}
	lines, _ = s.LayoutLines(" and ", 0, bodyFont, 16, 19.2, "")
	if lines[0].Content != " and " {
		t.Fatalf("两侧边界空格都应保留: %q", lines[0].Content)
	}
	lines, _ = s.LayoutLines("   ", 0, bodyFont, 16, 19.2, "")
	if len(lines) != 1 || lines[0].Content != "" || lines[0].Width != 0 {
		t.Fatalf("纯空白文本不应产生宽度: %+v", lines)
	}
}

func TestInlineSiblingsAreSpaced(t *testing.T) {
	e := newTestEngine(t)
	tree, err := markup.ParseString(`<p style="display:flex">Hello <b>World</b></p>`)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	res, err := e.Build(context.Background(), tree, layout.Options{Constraint: layout.Fixed(400, 100)})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if len(res.Texts) != 2 {
		t.Fatalf("期望 2 个文本块，实际 %d", len(res.Texts))
	}
	hello, world := res.Texts[0], res.Texts[1]
	if hello.Content != "Hello " || world.Content != "World" {
		t.Fatalf("文本内容不正确: %q %q", hello.Content, world.Content)
	}
	word, _ := newTestSession(t).LayoutLines("Hello", 0, hello.Font, hello.FontSize, hello.LineHeight, "")
	if world.X < hello.X+word[0].Width+1 {
		t.Fatalf("World 应位于 Hello 与空格之后: hello.X=%g 宽 %g world.X=%g", hello.X, word[0].Width, world.X)
	}
}
