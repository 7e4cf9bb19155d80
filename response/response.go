// Package response wraps a render in an HTTP response descriptor whose body
// is produced lazily, on first read.
package response

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ByLCY/ogimage/fonts"
	"github.com/ByLCY/ogimage/markup"
	"github.com/ByLCY/ogimage/render"
)

// Cache-Control values.
const (
	CacheImmutable = "public, immutable, no-transform, max-age=31536000"
	CacheDebug     = "no-cache, no-store"
)

// Options configures one render and the response around it.
type Options struct {
	Width  *float64
	Height *float64
	// Format is "png" or "svg"; empty means png.
	Format render.Format
	Fonts  []fonts.Asset
	// Debug disables caching and draws layout box outlines.
	Debug bool
	// Status defaults to 200; StatusText defaults to http.StatusText(Status).
	Status     int
	StatusText string
	// Headers are applied last and override the computed headers.
	Headers http.Header
	// Data fills ${path} placeholders in the markup.
	Data any
}

// Runner executes a render request.
type Runner interface {
	Run(ctx context.Context, req render.Request) ([]byte, error)
}

// Builder creates lazy responses backed by a Runner.
type Builder struct {
	Pipeline Runner
}

// NewBuilder returns a Builder using p.
func NewBuilder(p Runner) *Builder { return &Builder{Pipeline: p} }

// Default returns a Builder backed by render.Default.
func Default() *Builder { return NewBuilder(render.Default()) }

// Response is the HTTP descriptor of a render. Body is single-use: the render
// starts on its first Read and closing it cancels the render.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
	Format     render.Format
}

// New builds the response without rendering. The only error is
// render.ErrUnknownFormat.
func (b *Builder) New(ctx context.Context, el markup.Element, opts Options) (*Response, error) {
	format, err := render.ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	req := render.Request{
		Element: el,
		Width:   opts.Width,
		Height:  opts.Height,
		Format:  format,
		Fonts:   opts.Fonts,
		Debug:   opts.Debug,
		Data:    opts.Data,
	}
	run := func(ctx context.Context) ([]byte, error) { return b.Pipeline.Run(ctx, req) }

	var body io.ReadCloser
	if format == render.SVG {
		body = newFutureBody(ctx, run)
	} else {
		body = newStreamBody(ctx, run)
	}

	header := http.Header{}
	header.Set("Content-Type", format.ContentType())
	if opts.Debug {
		header.Set("Cache-Control", CacheDebug)
	} else {
		header.Set("Cache-Control", CacheImmutable)
	}
	for k, vs := range opts.Headers {
		header.Del(k)
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	status := opts.Status
	if status == 0 {
		status = http.StatusOK
	}
	text := opts.StatusText
	if text == "" {
		text = http.StatusText(status)
	}
	return &Response{Status: status, StatusText: text, Header: header, Body: body, Format: format}, nil
}

// Bytes consumes and closes the body.
func (r *Response) Bytes() ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// Serve writes the response to w. The first chunk is pulled before any
// header is written, so a failed render leaves w untouched and its error is
// returned for the caller to map.
func (r *Response) Serve(w http.ResponseWriter) error {
	defer r.Body.Close()
	buf := make([]byte, 32*1024)
	var n int
	var err error
	for n == 0 && err == nil {
		n, err = r.Body.Read(buf)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	h := w.Header()
	for k, vs := range r.Header {
		h[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(r.Status)
	if _, werr := w.Write(buf[:n]); werr != nil || err != nil {
		return werr
	}
	_, err = io.CopyBuffer(w, r.Body, buf)
	return err
}
