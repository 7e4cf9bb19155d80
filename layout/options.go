package layout

import "github.com/ByLCY/ogimage/fonts"

// Options 是布局引擎的调用参数：尺寸约束、字体列表与调试开关。
type Options struct {
	Constraint Constraint
	Fonts      []fonts.Asset
	Debug      bool
}

// BuildOptions 配置布局阶段所需的依赖，例如排版后端。
type BuildOptions struct {
	Constraint Constraint
	Typesetter Typesetter
	// Debug 为每个盒子输出描边轮廓。
	Debug bool
}

// Typesetter 负责根据字体与宽度约束将文本拆成可绘制的行。
// width <= 0 表示不限宽，只按显式换行拆分。
type Typesetter interface {
	LayoutLines(content string, width float64, font FontSpec, fontSize float64, lineHeight float64, wrap string) ([]TextLine, error)
}
