package layout

// 该文件定义布局结果，供布局计算、渲染与调试 JSON 共用。所有坐标与尺寸单位均为 px。

// Result 保存一次布局后画布尺寸与可以直接绘制的元素。
// 渲染顺序：先 Rects（背景与边框），再 Texts，调试模式下最后绘制 Outlines。
type Result struct {
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Rects    []Rect    `json:"rects,omitempty"`
	Texts    []TextBox `json:"texts,omitempty"`
	Outlines []Rect    `json:"outlines,omitempty"`
}

// Color 采用 0-255 的 RGB 数值，A 为 0-1 的不透明度。
type Color struct {
	R int     `json:"r"`
	G int     `json:"g"`
	B int     `json:"b"`
	A float64 `json:"a"`
}

// Opaque 判断颜色是否完全不透明。
func (c Color) Opaque() bool { return c.A >= 1 }

// Rect 表示一个可带圆角的矩形。Fill 与 Stroke 为空表示不填充/不描边。
type Rect struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Radius      float64 `json:"radius,omitempty"`
	Fill        *Color  `json:"fill,omitempty"`
	Stroke      *Color  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
}

// FontSpec 描述文本请求的字体：候选字族（按优先级）、字重与字形。
type FontSpec struct {
	Family []string `json:"family,omitempty"`
	Weight int      `json:"weight"`
	Style  string   `json:"style"`
}

// TextBox 表示一个已经排好坐标的文本块。
type TextBox struct {
	Content    string     `json:"content"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	LineHeight float64    `json:"lineHeight"`
	Font       FontSpec   `json:"font"`
	FontSize   float64    `json:"fontSize"`
	Color      Color      `json:"color"`
	Lines      []TextLine `json:"lines"`
	Align      string     `json:"align,omitempty"` // left（默认）/center/right
	Wrap       string     `json:"wrap,omitempty"`  // anywhere（默认）/break-word/nowrap
}

// TextLine 表示排版后的一行文本内容及其宽高。
type TextLine struct {
	Content string  `json:"content"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}
