package canvasrenderer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/ogimage/engine"
	"github.com/ByLCY/ogimage/layout"
	"github.com/ByLCY/ogimage/markup"
	"github.com/ByLCY/ogimage/renderer"
)

// ErrNotInitialized is returned by Layout before Init has succeeded.
var ErrNotInitialized = errors.New("canvas: layout engine not initialized")

// Engine lays out element trees and paints them to SVG via github.com/tdewolff/canvas.
// It must be initialized once per process; the process-wide instance is Default().
type Engine struct {
	once engine.Once
	base []*fontEntry
}

var (
	_ renderer.Engine    = (*Engine)(nil)
	_ engine.Initializer = (*Engine)(nil)

	defaultEngine = New()
)

// New returns an uninitialized engine.
func New() *Engine { return &Engine{} }

// Default returns the process-wide engine.
func Default() *Engine { return defaultEngine }

// Init 加载兜底字体（Go 字体族）。重复调用返回 engine.ErrAlreadyInitialized。
func (e *Engine) Init(ctx context.Context) error {
	return e.once.Do(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := make([]*fontEntry, 0, 5)
		for _, f := range []struct {
			data   []byte
			weight int
			style  string
		}{
			{goregular.TTF, 400, "normal"},
			{gomedium.TTF, 500, "normal"},
			{gobold.TTF, 700, "normal"},
			{goitalic.TTF, 400, "italic"},
			{gobolditalic.TTF, 700, "italic"},
		} {
			entry, err := newFontEntry("Go", f.data, f.weight, f.style)
			if err != nil {
				return fmt.Errorf("加载内置 Go 字体失败: %w", err)
			}
			base = append(base, entry)
		}
		e.base = base
		return nil
	})
}

// Ready reports whether Init has completed.
func (e *Engine) Ready() bool { return e.once.Ready() }

// Build 只执行布局，返回可用于调试 JSON 的布局结果。
func (e *Engine) Build(ctx context.Context, tree *markup.Node, opts layout.Options) (*layout.Result, error) {
	res, _, err := e.build(ctx, tree, opts)
	return res, err
}

// Layout 执行布局并把结果绘制为 SVG 文本。
func (e *Engine) Layout(ctx context.Context, tree *markup.Node, opts layout.Options) ([]byte, error) {
	res, s, err := e.build(ctx, tree, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Render(res)
}

func (e *Engine) build(ctx context.Context, tree *markup.Node, opts layout.Options) (*layout.Result, *session, error) {
	if !e.Ready() {
		return nil, nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s, err := newSession(opts.Fonts, e.base)
	if err != nil {
		return nil, nil, err
	}
	res, err := layout.Build(tree, layout.BuildOptions{
		Constraint: opts.Constraint,
		Typesetter: s,
		Debug:      opts.Debug,
	})
	if err != nil {
		return nil, nil, err
	}
	return res, s, nil
}
