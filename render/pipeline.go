// Package render runs the full rendering sequence: engine startup, markup
// normalization, dimension resolution, font resolution, layout and the
// optional rasterization step.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/ByLCY/ogimage/binding"
	"github.com/ByLCY/ogimage/engine"
	"github.com/ByLCY/ogimage/fonts"
	"github.com/ByLCY/ogimage/layout"
	"github.com/ByLCY/ogimage/markup"
	"github.com/ByLCY/ogimage/raster"
	"github.com/ByLCY/ogimage/renderer"
	canvasrenderer "github.com/ByLCY/ogimage/renderer/canvas"
)

// Runtime brings the engines up before a render.
type Runtime interface {
	EnsureReady(ctx context.Context) error
}

// Rasterizer turns SVG text into PNG bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, svg []byte, fit raster.Fit) ([]byte, error)
}

// FontResolver picks the fonts handed to the layout engine.
type FontResolver interface {
	Resolve(ctx context.Context, supplied []fonts.Asset) ([]fonts.Asset, error)
}

// Request is one render call.
type Request struct {
	Element markup.Element
	Width   *float64
	Height  *float64
	// Format is validated by ParseFormat; empty means PNG.
	Format Format
	Fonts  []fonts.Asset
	Debug  bool
	// Data, when non-nil, is interpolated into ${path} placeholders.
	Data any
}

// Pipeline wires the collaborators of a render. All fields are required.
type Pipeline struct {
	Runtime    Runtime
	Engine     renderer.Engine
	Rasterizer Rasterizer
	Fonts      FontResolver
}

// Default returns a pipeline backed by the process-wide canvas engine and
// rasterizer, fetching the fallback font from Google Fonts.
func Default() *Pipeline {
	layoutEngine := canvasrenderer.Default()
	rasterizer := raster.Default()
	return &Pipeline{
		Runtime:    &engine.Runtime{Layout: layoutEngine, Raster: rasterizer},
		Engine:     layoutEngine,
		Rasterizer: rasterizer,
		Fonts:      fonts.NewResolver(),
	}
}

// Prepared is a request after every step that precedes layout.
type Prepared struct {
	Tree    *markup.Node
	Options layout.Options
	Format  Format
}

// Run executes the ordered sequence EnsureReady, Normalize, interpolation,
// ResolveDimensions, font resolution and Render. The context is checked
// between steps; no step is retried.
func (p *Pipeline) Run(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	prep, err := p.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	out, err := p.Render(ctx, prep.Tree, prep.Options, prep.Format)
	if err != nil {
		return nil, err
	}
	engine.Logger().Debug("render finished", "format", string(prep.Format), "bytes", len(out), "duration", time.Since(start))
	return out, nil
}

// Prepare runs the steps of Run up to, but not including, layout. Callers
// that need both the image and the layout result share one Prepared.
func (p *Pipeline) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return nil, err
	}
	log := engine.Logger()
	start := time.Now()

	if err := p.Runtime.EnsureReady(ctx); err != nil {
		return nil, err
	}
	tree, err := markup.Normalize(ctx, req.Element)
	if err != nil {
		return nil, err
	}
	if req.Data != nil {
		tree = binding.InterpolateTree(tree, req.Data)
	}
	c := layout.ResolveDimensions(req.Width, req.Height)
	log.Debug("render prepared", "constraint", c.String(), "format", string(format), "duration", time.Since(start))

	step := time.Now()
	assets, err := p.Fonts.Resolve(ctx, req.Fonts)
	if err != nil {
		return nil, err
	}
	log.Debug("fonts resolved", "count", len(assets), "duration", time.Since(step))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Prepared{
		Tree:    tree,
		Options: layout.Options{Constraint: c, Fonts: assets, Debug: req.Debug},
		Format:  format,
	}, nil
}

// Render lays the tree out to SVG and, for PNG, rasterizes it with FitFor.
func (p *Pipeline) Render(ctx context.Context, tree *markup.Node, opts layout.Options, format Format) ([]byte, error) {
	step := time.Now()
	svg, err := p.Engine.Layout(ctx, tree, opts)
	if err != nil {
		return nil, fmt.Errorf("render: layout: %w", err)
	}
	engine.Logger().Debug("layout finished", "bytes", len(svg), "duration", time.Since(step))
	if format == SVG {
		return svg, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	step = time.Now()
	fit := FitFor(opts.Constraint)
	png, err := p.Rasterizer.Rasterize(ctx, svg, fit)
	if err != nil {
		return nil, fmt.Errorf("render: rasterize: %w", err)
	}
	engine.Logger().Debug("raster finished", "fit", fit.Mode.String(), "value", fit.Value, "duration", time.Since(step))
	return png, nil
}

// FitFor scales to the width when the constraint has one, else to the height.
func FitFor(c layout.Constraint) raster.Fit {
	if w, ok := c.Width(); ok {
		return raster.Fit{Mode: raster.FitWidth, Value: w}
	}
	h, _ := c.Height()
	return raster.Fit{Mode: raster.FitHeight, Value: h}
}
