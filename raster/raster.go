// Package raster 把 SVG 文本光栅化为 PNG。
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/ByLCY/ogimage/engine"
)

var (
	// ErrRasterize 表示 SVG 无法转换为位图。
	ErrRasterize = errors.New("raster: 光栅化失败")
	// ErrNotInitialized is returned by Rasterize before Init has succeeded.
	ErrNotInitialized = errors.New("raster: rasterizer not initialized")
)

// MaxDimension 是输出位图单边的最大像素数。
const MaxDimension = 16384

// FitMode 决定以哪一边缩放位图。
type FitMode int

const (
	// FitWidth 按宽度缩放，高度随比例变化。
	FitWidth FitMode = iota
	// FitHeight 按高度缩放，宽度随比例变化。
	FitHeight
)

func (m FitMode) String() string {
	if m == FitHeight {
		return "height"
	}
	return "width"
}

// Fit 是光栅化的缩放策略：Mode 指定的那一边输出 Value 个像素。
type Fit struct {
	Mode  FitMode
	Value float64
}

// Rasterizer 把 SVG 文本转为 PNG 字节。进程内只需初始化一次，见 Default。
type Rasterizer struct {
	once engine.Once
}

var (
	_ engine.Initializer = (*Rasterizer)(nil)

	defaultRasterizer = New()
	registerOnce      sync.Once
)

// New returns an uninitialized rasterizer.
func New() *Rasterizer { return &Rasterizer{} }

// Default returns the process-wide rasterizer.
func Default() *Rasterizer { return defaultRasterizer }

// Init 向 image 包注册 svg 格式（全进程仅注册一次）并标记就绪。
// 重复调用返回 engine.ErrAlreadyInitialized。
func (r *Rasterizer) Init(ctx context.Context) error {
	return r.once.Do(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		registerOnce.Do(registerSVG)
		return nil
	})
}

// Ready reports whether Init has completed.
func (r *Rasterizer) Ready() bool { return r.once.Ready() }

// Rasterize 解析 SVG 并按 fit 缩放绘制，返回 PNG 编码后的字节。
func (r *Rasterizer) Rasterize(ctx context.Context, svg []byte, fit Fit) ([]byte, error) {
	if !r.Ready() {
		return nil, ErrNotInitialized
	}
	if fit.Value <= 0 || math.IsNaN(fit.Value) || math.IsInf(fit.Value, 0) {
		return nil, fmt.Errorf("%w: 无效的%s %g", ErrRasterize, fit.Mode, fit.Value)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := canvas.ParseSVG(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("%w: 解析 SVG 失败: %w", ErrRasterize, err)
	}
	if c.W <= 0 || c.H <= 0 {
		return nil, fmt.Errorf("%w: SVG 尺寸无效 %gx%g", ErrRasterize, c.W, c.H)
	}
	// 分辨率为每个画布单位对应的像素数
	res := fit.Value / c.W
	if fit.Mode == FitHeight {
		res = fit.Value / c.H
	}
	if w, h := c.W*res, c.H*res; w > MaxDimension || h > MaxDimension {
		return nil, fmt.Errorf("%w: 输出尺寸 %.0fx%.0f 超过上限 %d", ErrRasterize, w, h, MaxDimension)
	}
	img := rasterizer.Draw(c, canvas.Resolution(res), canvas.DefaultColorSpace)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: PNG 编码失败: %w", ErrRasterize, err)
	}
	engine.Logger().Debug("rasterized", "fit", fit.Mode.String(), "value", fit.Value, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// registerSVG 让 image.Decode 能识别 SVG 文本，按 96 DPI 绘制。
func registerSVG() {
	image.RegisterFormat("svg", "<svg", func(r io.Reader) (image.Image, error) {
		c, err := canvas.ParseSVG(r)
		if err != nil {
			return nil, err
		}
		return rasterizer.Draw(c, canvas.DPI(96), canvas.DefaultColorSpace), nil
	}, func(r io.Reader) (image.Config, error) {
		c, err := canvas.ParseSVG(r)
		if err != nil {
			return image.Config{}, err
		}
		return image.Config{
			ColorModel: color.RGBAModel,
			Width:      int(c.W),
			Height:     int(c.H),
		}, nil
	})
}
