package layout

import (
	"strconv"
	"strings"
)

// This file defines unit-safe types and helpers for length and line-height.

// Unit represents the original unit of a length value as written in a style.
type Unit int

const (
	UnitNone    Unit = iota // unit-less numbers like factors
	UnitPX                  // CSS pixels; bare numbers are pixels too
	UnitPT                  // points
	UnitEM                  // relative to the element font size
	UnitREM                 // relative to the root font size
	UnitPercent             // relative to the containing block
)

// Conversion constants between pt and px.
const (
	PtToPx = 96.0 / 72.0
	PxToPt = 1.0 / PtToPx

	// RootFontSize is the font size of the root element and the rem base.
	RootFontSize = 16.0
)

// UnitToString returns a short string for a Unit value.
func UnitToString(u Unit) string {
	switch u {
	case UnitPX:
		return "px"
	case UnitPT:
		return "pt"
	case UnitEM:
		return "em"
	case UnitREM:
		return "rem"
	case UnitPercent:
		return "%"
	default:
		return ""
	}
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (l Length) IsZero() bool { return l.Value == 0 }

// IsRelative reports whether resolving l needs a reference length.
func (l Length) IsRelative() bool { return l.Unit == UnitPercent }

// Resolve converts l to pixels. fontSize is the em base, reference the base
// for percentages.
func (l Length) Resolve(fontSize, reference float64) float64 {
	switch l.Unit {
	case UnitPT:
		return l.Value * PtToPx
	case UnitEM:
		return l.Value * fontSize
	case UnitREM:
		return l.Value * RootFontSize
	case UnitPercent:
		return reference * l.Value / 100
	default:
		return l.Value
	}
}

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + UnitToString(l.Unit)
}

// ParseLength parses a CSS length. Bare numbers are pixels. "auto" and
// unparsable values report false.
func ParseLength(value string) (Length, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || v == "auto" {
		return Length{}, false
	}
	unit := UnitPX
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"rem", UnitREM}, {"em", UnitEM}, {"px", UnitPX}, {"pt", UnitPT}, {"%", UnitPercent}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, false
	}
	return Length{Value: f, Unit: unit}, true
}

// LineHeightKind distinguishes factor-based vs absolute line-height specification.
type LineHeightKind int

const (
	LineHeightNormal LineHeightKind = iota
	LineHeightFactor
	LineHeightAbsolute
)

// NormalLineHeight is the factor used for line-height: normal.
const NormalLineHeight = 1.2

// LineHeightSpec preserves original author intent: either a factor (e.g. 1.5)
// or an absolute length (e.g. 24px, 150%).
type LineHeightSpec struct {
	Kind   LineHeightKind `json:"kind"`
	Factor float64        `json:"factor,omitempty"`
	Len    Length         `json:"len,omitempty"`
}

// Resolve computes the absolute line height in pixels for a font size.
func (s LineHeightSpec) Resolve(fontSize float64) float64 {
	switch s.Kind {
	case LineHeightFactor:
		return fontSize * s.Factor
	case LineHeightAbsolute:
		return s.Len.Resolve(fontSize, fontSize)
	default:
		return fontSize * NormalLineHeight
	}
}

// ParseLineHeight parses a CSS line-height value.
func ParseLineHeight(value string) (LineHeightSpec, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "normal" {
		return LineHeightSpec{Kind: LineHeightNormal}, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if f < 0 {
			return LineHeightSpec{}, false
		}
		return LineHeightSpec{Kind: LineHeightFactor, Factor: f}, true
	}
	l, ok := ParseLength(v)
	if !ok || l.Value < 0 {
		return LineHeightSpec{}, false
	}
	return LineHeightSpec{Kind: LineHeightAbsolute, Len: l}, true
}
