package layout

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ByLCY/ogimage/markup"
)

// stubTypesetter 是一个最小实现，仅用于测试，避免引入 renderer 造成循环依赖。
// 每个字符宽度固定为字号的一半，按空格贪心折行。
type stubTypesetter struct{}

func (s *stubTypesetter) LayoutLines(content string, width float64, font FontSpec, fontSize float64, lineHeight float64, wrap string) ([]TextLine, error) {
	measure := func(str string) float64 { return float64(len([]rune(str))) * fontSize / 2 }
	words := strings.Fields(content)
	if len(words) == 0 {
		return []TextLine{{Content: "", Height: lineHeight}}, nil
	}
	var lines []TextLine
	current := ""
	for _, w := range words {
		candidate := w
		if current != "" {
			candidate = current + " " + w
		}
		if width > 0 && current != "" && measure(candidate) > width {
			lines = append(lines, TextLine{Content: current, Width: measure(current)})
			current = w
			continue
		}
		current = candidate
	}
	lines = append(lines, TextLine{Content: current, Width: measure(current)})
	return lines, nil
}

type failingTypesetter struct{ err error }

func (f failingTypesetter) LayoutLines(string, float64, FontSpec, float64, float64, string) ([]TextLine, error) {
	return nil, f.err
}

func buildMarkup(t *testing.T, src string, c Constraint, debug bool) *Result {
	t.Helper()
	tree, err := markup.ParseString(src)
	if err != nil {
		t.Fatalf("解析标记失败: %v", err)
	}
	res, err := Build(tree, BuildOptions{Constraint: c, Typesetter: &stubTypesetter{}, Debug: debug})
	if err != nil {
		t.Fatalf("布局计算失败: %v", err)
	}
	return res
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBuildDefaultCanvas(t *testing.T) {
	res := buildMarkup(t, `<div style="display:flex"><h1>Hi</h1></div>`, Constraint{}, false)
	if res.Width != 1200 || res.Height != 630 {
		t.Fatalf("默认画布应为 1200x630，实际 %gx%g", res.Width, res.Height)
	}
	if len(res.Texts) != 1 {
		t.Fatalf("期望 1 个文本块，实际 %d", len(res.Texts))
	}
	tb := res.Texts[0]
	if tb.Content != "Hi" || tb.FontSize != 32 || tb.Font.Weight != 700 {
		t.Fatalf("h1 默认样式不正确: %+v", tb)
	}
	if !approx(tb.Width, 32) || len(tb.Lines) != 1 {
		t.Fatalf("h1 文本宽度或行数不正确: width=%g lines=%d", tb.Width, len(tb.Lines))
	}
}

func TestBuildWidthOnlyComputesHeight(t *testing.T) {
	src := `<div style="display:flex;flex-direction:column;padding:10px"><p>Hello</p></div>`
	res := buildMarkup(t, src, WidthOnly(400), false)
	if res.Width != 400 {
		t.Fatalf("宽度应保持 400，实际 %g", res.Width)
	}
	// 19.2 行高 + 上下 padding 20，向上取整
	if res.Height != 40 {
		t.Fatalf("高度应由内容决定为 40，实际 %g", res.Height)
	}
}

func TestBuildHeightOnlyComputesWidth(t *testing.T) {
	src := `<div style="display:flex;flex-direction:column;padding:10px"><p>Hello</p></div>`
	res := buildMarkup(t, src, HeightOnly(100), false)
	if res.Height != 100 {
		t.Fatalf("高度应保持 100，实际 %g", res.Height)
	}
	if res.Width != 60 {
		t.Fatalf("宽度应由内容决定为 60，实际 %g", res.Width)
	}
}

func TestBuildRejectsNonPositiveSize(t *testing.T) {
	tree := markup.El("div", nil, markup.Text("x"))
	for _, c := range []Constraint{Fixed(0, 100), Fixed(100, -1), WidthOnly(-5), HeightOnly(0)} {
		_, err := Build(tree, BuildOptions{Constraint: c, Typesetter: &stubTypesetter{}})
		if !errors.Is(err, ErrLayout) {
			t.Fatalf("约束 %s 应返回 ErrLayout，实际 %v", c, err)
		}
	}
}

func TestBuildRejectsUnsupportedDisplay(t *testing.T) {
	tree := markup.El("div", map[string]string{"display": "grid"})
	_, err := Build(tree, BuildOptions{Typesetter: &stubTypesetter{}})
	if !errors.Is(err, ErrLayout) {
		t.Fatalf("display:grid 应返回 ErrLayout，实际 %v", err)
	}
}

func TestBuildRequiresTypesetter(t *testing.T) {
	if _, err := Build(markup.El("div", nil), BuildOptions{}); err == nil {
		t.Fatalf("缺少 Typesetter 时应报错")
	}
}

func TestBuildPropagatesTypesetterError(t *testing.T) {
	boom := errors.New("boom")
	tree := markup.El("p", nil, markup.Text("x"))
	_, err := Build(tree, BuildOptions{Typesetter: failingTypesetter{err: boom}})
	if !errors.Is(err, boom) {
		t.Fatalf("应透传排版错误，实际 %v", err)
	}
}

func TestJustifyContentCenter(t *testing.T) {
	src := `<div style="display:flex;justify-content:center">` +
		`<div style="width:100px;height:50px;background:#f00"></div>` +
		`<div style="width:100px;height:50px;background:#00f"></div></div>`
	res := buildMarkup(t, src, Fixed(400, 100), false)
	if len(res.Rects) != 2 {
		t.Fatalf("期望 2 个矩形，实际 %d", len(res.Rects))
	}
	if res.Rects[0].X != 100 || res.Rects[1].X != 200 {
		t.Fatalf("居中后的 x 坐标不正确: %g, %g", res.Rects[0].X, res.Rects[1].X)
	}
	if res.Rects[0].Height != 50 || res.Rects[0].Fill == nil || res.Rects[0].Fill.R != 255 {
		t.Fatalf("第一个矩形不正确: %+v", res.Rects[0])
	}
}

func TestFlexGrowFillsFreeSpace(t *testing.T) {
	src := `<div style="display:flex">` +
		`<div style="flex-grow:1;background:red"></div>` +
		`<div style="width:100px;background:blue"></div></div>`
	res := buildMarkup(t, src, Fixed(300, 100), false)
	if len(res.Rects) != 2 {
		t.Fatalf("期望 2 个矩形，实际 %d", len(res.Rects))
	}
	if res.Rects[0].Width != 200 || res.Rects[1].X != 200 {
		t.Fatalf("flex-grow 分配不正确: %+v", res.Rects)
	}
	if res.Rects[0].Height != 100 {
		t.Fatalf("默认 stretch 应撑满高度，实际 %g", res.Rects[0].Height)
	}
}

func TestColumnCentering(t *testing.T) {
	src := `<div style="display:flex;flex-direction:column;align-items:center;justify-content:center">` +
		`<div style="width:50px;height:20px;background:red"/></div>`
	res := buildMarkup(t, src, Fixed(200, 100), false)
	if len(res.Rects) != 1 {
		t.Fatalf("期望 1 个矩形，实际 %d", len(res.Rects))
	}
	if r := res.Rects[0]; r.X != 75 || r.Y != 40 {
		t.Fatalf("纵向居中坐标不正确: (%g, %g)", r.X, r.Y)
	}
}

// TestTextBoxTotalHeightInvariant 断言：TextBox.Height == Σ line.Height。
func TestTextBoxTotalHeightInvariant(t *testing.T) {
	src := `<div style="display:flex;flex-direction:column;width:100px">` +
		`<p style="font-size:20px;line-height:1.5">aaaa bbbb cccc dddd</p></div>`
	res := buildMarkup(t, src, WidthOnly(100), false)
	if len(res.Texts) != 1 {
		t.Fatalf("期望 1 个文本块，实际 %d", len(res.Texts))
	}
	tb := res.Texts[0]
	if len(tb.Lines) != 2 || tb.Lines[0].Content != "aaaa bbbb" {
		t.Fatalf("折行结果不正确: %+v", tb.Lines)
	}
	total := 0.0
	for _, ln := range tb.Lines {
		total += ln.Height
	}
	if !approx(total, tb.Height) || !approx(tb.Height, 60) {
		t.Fatalf("TextBox.Height 不变式不成立: got=%g want=%g", tb.Height, total)
	}
	if res.Height != 60 {
		t.Fatalf("画布高度应为 60，实际 %g", res.Height)
	}
}

func TestDebugOutlines(t *testing.T) {
	res := buildMarkup(t, `<div><span>a</span><span>b</span></div>`, Fixed(100, 100), true)
	if len(res.Outlines) != 3 {
		t.Fatalf("调试模式应为每个盒子输出轮廓，实际 %d", len(res.Outlines))
	}
	plain := buildMarkup(t, `<div><span>a</span><span>b</span></div>`, Fixed(100, 100), false)
	if len(plain.Outlines) != 0 {
		t.Fatalf("非调试模式不应输出轮廓")
	}
}

func TestOpacityMultiplies(t *testing.T) {
	src := `<div style="opacity:0.5;background:#000"><p style="opacity:0.5;color:#fff">x</p></div>`
	res := buildMarkup(t, src, Fixed(100, 100), false)
	if len(res.Rects) != 1 || !approx(res.Rects[0].Fill.A, 0.5) {
		t.Fatalf("背景透明度不正确: %+v", res.Rects)
	}
	if len(res.Texts) != 1 || !approx(res.Texts[0].Color.A, 0.25) {
		t.Fatalf("文本透明度应为 0.25: %+v", res.Texts)
	}
}

func TestDisplayNoneSkipsElement(t *testing.T) {
	res := buildMarkup(t, `<div><p style="display:none">x</p><p>y</p></div>`, Fixed(100, 100), false)
	if len(res.Texts) != 1 || res.Texts[0].Content != "y" {
		t.Fatalf("display:none 的元素不应参与布局: %+v", res.Texts)
	}
}

func TestBorderInsetStroke(t *testing.T) {
	res := buildMarkup(t, `<div style="border:4px solid #123456;border-radius:10px"></div>`, Fixed(100, 50), false)
	if len(res.Rects) != 1 {
		t.Fatalf("期望 1 个边框矩形，实际 %d", len(res.Rects))
	}
	r := res.Rects[0]
	if r.Stroke == nil || r.StrokeWidth != 4 || r.X != 2 || r.Width != 96 || r.Radius != 8 {
		t.Fatalf("边框矩形不正确: %+v", r)
	}
	if r.Stroke.R != 0x12 || r.Stroke.G != 0x34 || r.Stroke.B != 0x56 {
		t.Fatalf("边框颜色不正确: %+v", *r.Stroke)
	}
}
