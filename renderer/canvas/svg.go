package canvasrenderer

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/ByLCY/ogimage/layout"
	"github.com/ByLCY/ogimage/renderer"
)

var _ renderer.Renderer = (*session)(nil)

// Render 把布局结果绘制为 SVG 文本。文字被转换为字形路径，
// 因此输出不依赖查看端安装的字体，光栅化时也无需再次加载字体。
func (s *session) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	c := canvas.New(result.Width, result.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点

	drawRects(ctx, result.Rects)
	for _, tb := range result.Texts {
		if err := s.drawTextBox(ctx, tb); err != nil {
			return nil, err
		}
	}
	drawRects(ctx, result.Outlines)

	var buf bytes.Buffer
	// 画布单位即 px，根元素的 width/height 不带单位
	writer := svg.New(&buf, result.Width, result.Height, &svg.Options{ImageEncoding: canvas.Lossless})
	c.RenderTo(writer)
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 SVG 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRects(ctx *canvas.Context, rects []layout.Rect) {
	for _, rc := range rects {
		if rc.Width <= 0 || rc.Height <= 0 {
			continue
		}
		if rc.Fill != nil {
			ctx.SetFillColor(colorFromLayout(*rc.Fill))
		} else {
			ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		}
		if rc.Stroke != nil && rc.StrokeWidth > 0 {
			ctx.SetStrokeColor(colorFromLayout(*rc.Stroke))
			ctx.SetStrokeWidth(rc.StrokeWidth)
		} else {
			ctx.SetStrokeColor(color.RGBA{0, 0, 0, 0})
			ctx.SetStrokeWidth(0)
		}
		var p *canvas.Path
		if rc.Radius > 0 {
			p = canvas.RoundedRectangle(rc.Width, rc.Height, rc.Radius)
		} else {
			p = canvas.Rectangle(rc.Width, rc.Height)
		}
		ctx.DrawPath(rc.X, rc.Y, p)
	}
}

func (s *session) drawTextBox(ctx *canvas.Context, tb layout.TextBox) error {
	if len(tb.Lines) == 0 || tb.FontSize <= 0 {
		return nil
	}
	chain := s.chain(tb.Font)
	if len(chain) == 0 {
		return fmt.Errorf("文本 %q 没有可用字体", tb.Content)
	}
	// 基线：行盒顶部加上半行距，再加上主字体的上升部
	metrics := s.face(chain[0], tb.FontSize).Metrics()
	ascent, descent := math.Abs(metrics.Ascent), math.Abs(metrics.Descent)

	glyphs := &canvas.Path{}
	top := tb.Y
	for _, line := range tb.Lines {
		lh := line.Height
		if lh <= 0 {
			lh = tb.LineHeight
		}
		baseline := top + (lh-(ascent+descent))/2 + ascent
		x := tb.X
		switch tb.Align {
		case "center":
			x += (tb.Width - line.Width) / 2
		case "right":
			x += tb.Width - line.Width
		}
		for _, r := range splitRuns(line.Content, chain) {
			face := s.face(r.entry, tb.FontSize)
			if strings.TrimSpace(r.text) != "" {
				p, _, err := face.ToPath(r.text)
				if err != nil {
					return fmt.Errorf("生成文本 %q 的字形路径失败: %w", r.text, err)
				}
				// 字形路径 y 轴朝上，翻转后与左上角原点的坐标系一致
				glyphs = glyphs.Append(p.Transform(canvas.Identity.Translate(x, baseline).Scale(1, -1)))
			}
			x += face.TextWidth(r.text)
		}
		top += lh
	}
	if glyphs.Empty() {
		return nil
	}
	ctx.SetFillColor(colorFromLayout(tb.Color))
	ctx.SetStrokeColor(color.RGBA{0, 0, 0, 0})
	ctx.SetStrokeWidth(0)
	ctx.DrawPath(0, 0, glyphs)
	return nil
}

func colorFromLayout(c layout.Color) color.NRGBA {
	clamp := func(v int) uint8 { return uint8(max(0, min(255, v))) }
	a := math.Round(math.Max(0, math.Min(1, c.A)) * 255)
	return color.NRGBA{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B), A: uint8(a)}
}
