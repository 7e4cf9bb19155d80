// Package server exposes the renderer over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/ByLCY/ogimage/engine"
	"github.com/ByLCY/ogimage/fonts"
	"github.com/ByLCY/ogimage/markup"
	"github.com/ByLCY/ogimage/render"
	"github.com/ByLCY/ogimage/response"
)

// Builder creates lazy render responses; *response.Builder implements it.
type Builder interface {
	New(ctx context.Context, el markup.Element, opts response.Options) (*response.Response, error)
}

// Options configures the handler.
type Options struct {
	// MaxMarkupBytes limits the html query parameter and the POST body.
	MaxMarkupBytes int64
	// Compress enables brotli for SVG responses when the client accepts it.
	Compress bool
	// MinifySVG minifies SVG output.
	MinifySVG bool
}

const defaultMaxMarkupBytes = 256 << 10

// errBadRequest marks malformed request parameters.
var errBadRequest = errors.New("server: bad request")

// Handler serves GET and POST /image and GET /healthz.
type Handler struct {
	builder  Builder
	opts     Options
	minifier *minify.M
	mux      *http.ServeMux
}

// New returns a handler rendering through b.
func New(b Builder, opts Options) *Handler {
	if opts.MaxMarkupBytes <= 0 {
		opts.MaxMarkupBytes = defaultMaxMarkupBytes
	}
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)

	h := &Handler{builder: b, opts: opts, minifier: m, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /image", h.handleGet)
	h.mux.HandleFunc("POST /image", h.handlePost)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// payload is the JSON body of POST /image. Exactly one of HTML and Tree is set.
type payload struct {
	HTML   string        `json:"html"`
	Tree   *markup.Node  `json:"tree"`
	Width  *float64      `json:"width"`
	Height *float64      `json:"height"`
	Format string        `json:"format"`
	Fonts  []fonts.Asset `json:"fonts"`
	Debug  bool          `json:"debug"`
	Data   any           `json:"data"`
	// Status must be 0 (200) or within 200-599.
	Status int `json:"status"`
	// StatusText is kept on the response descriptor; net/http writes the
	// standard reason phrase on the wire.
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	html := q.Get("html")
	if int64(len(html)) > h.opts.MaxMarkupBytes {
		h.fail(w, r, &http.MaxBytesError{Limit: h.opts.MaxMarkupBytes})
		return
	}
	opts := response.Options{Format: render.Format(q.Get("format"))}
	var err error
	if opts.Width, err = floatParam(q.Get("width")); err != nil {
		h.fail(w, r, fmt.Errorf("%w: width: %w", errBadRequest, err))
		return
	}
	if opts.Height, err = floatParam(q.Get("height")); err != nil {
		h.fail(w, r, fmt.Errorf("%w: height: %w", errBadRequest, err))
		return
	}
	if v := q.Get("debug"); v != "" {
		if opts.Debug, err = strconv.ParseBool(v); err != nil {
			h.fail(w, r, fmt.Errorf("%w: debug: %w", errBadRequest, err))
			return
		}
	}
	if v := q.Get("data"); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.Data); err != nil {
			h.fail(w, r, fmt.Errorf("%w: data: %w", errBadRequest, err))
			return
		}
	}
	h.render(w, r, markup.Markup(html), opts)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxMarkupBytes)
	var p payload
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var mbe *http.MaxBytesError
		if !errors.As(err, &mbe) {
			err = fmt.Errorf("%w: %w", errBadRequest, err)
		}
		h.fail(w, r, err)
		return
	}
	if p.Status != 0 && (p.Status < 200 || p.Status > 599) {
		h.fail(w, r, fmt.Errorf("%w: status %d out of range", errBadRequest, p.Status))
		return
	}
	var el markup.Element = markup.Markup(p.HTML)
	if p.Tree != nil {
		el = p.Tree
	}
	opts := response.Options{
		Width:      p.Width,
		Height:     p.Height,
		Format:     render.Format(p.Format),
		Fonts:      p.Fonts,
		Debug:      p.Debug,
		Data:       p.Data,
		Status:     p.Status,
		StatusText: p.StatusText,
	}
	if len(p.Headers) > 0 {
		opts.Headers = http.Header{}
		for k, v := range p.Headers {
			opts.Headers.Set(k, v)
		}
	}
	h.render(w, r, el, opts)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, el markup.Element, opts response.Options) {
	res, err := h.builder.New(r.Context(), el, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	brotliOK := h.opts.Compress && acceptsBrotli(r)
	if res.Format != render.SVG || (!h.opts.MinifySVG && !brotliOK) {
		if err := res.Serve(w); err != nil {
			h.fail(w, r, err)
		}
		return
	}

	data, err := res.Bytes()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.opts.MinifySVG {
		if small, err := h.minifier.Bytes("image/svg+xml", data); err == nil {
			data = small
		} else {
			engine.Logger().Warn("svg minify failed", "error", err)
		}
	}
	hdr := w.Header()
	for k, vs := range res.Header {
		hdr[k] = vs
	}
	if brotliOK {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(data); err == nil && bw.Close() == nil {
			data = buf.Bytes()
			hdr.Set("Content-Encoding", "br")
			hdr.Add("Vary", "Accept-Encoding")
		}
	}
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(res.Status)
	w.Write(data)
}

// fail maps err to a status code and writes a JSON error body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	log := engine.Logger()
	if status >= 500 {
		log.Error("render failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// StatusFor maps a render error to an HTTP status.
func StatusFor(err error) int {
	var perr *markup.ParseError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &perr),
		errors.Is(err, errBadRequest),
		errors.Is(err, markup.ErrNoElement),
		errors.Is(err, render.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, fonts.ErrFontFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func floatParam(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// acceptsBrotli reports whether Accept-Encoding lists br with a non-zero q.
func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(enc), "br") {
			continue
		}
		q := strings.TrimSpace(params)
		if v, ok := strings.CutPrefix(q, "q="); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			return err == nil && f > 0
		}
		return true
	}
	return false
}
