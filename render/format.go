package render

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned for an output format other than png or svg.
var ErrUnknownFormat = errors.New("render: unknown format")

// Format selects the output encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" and "svg" in any case. The empty string means PNG.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return PNG, nil
	case PNG, SVG:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the media type of the encoded output.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}
