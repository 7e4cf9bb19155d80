package renderer

import (
	"context"

	"github.com/ByLCY/ogimage/layout"
	"github.com/ByLCY/ogimage/markup"
)

// Renderer 将布局结果输出为最终文件，这里是 SVG 文本。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}

// Engine 是布局与绘制引擎：把元素树、尺寸约束与字体变成 SVG 文本。
type Engine interface {
	Layout(ctx context.Context, tree *markup.Node, opts layout.Options) ([]byte, error)
}
