package canvasrenderer

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-text/typesetting/font"
	"github.com/tdewolff/canvas"

	"github.com/ByLCY/ogimage/engine"
	"github.com/ByLCY/ogimage/fonts"
	"github.com/ByLCY/ogimage/layout"
)

// mmPerPt: canvas 内部以 mm 为单位。按 px 数值创建字体面时换算为 pt，
// 使 canvas 返回的度量在数值上等于 px。
const mmPerPt = 25.4 / 72

// toPt 把以 px 表示的字号换算为 canvas 字体面需要的 pt。
func toPt(px float64) float64 { return px / mmPerPt }

// fontEntry 是一份已加载的字体。covers 判断字体是否包含某个字符的字形。
type fontEntry struct {
	name   string
	weight int
	style  string
	family *canvas.FontFamily
	covers func(rune) bool
}

func newFontEntry(name string, data []byte, weight int, style string) (*fontEntry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("字体 %s 数据为空", name)
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("加载字体 %s 失败: %w", name, err)
	}
	if weight <= 0 {
		weight = 400
	}
	switch style = strings.ToLower(strings.TrimSpace(style)); style {
	case "":
		style = "normal"
	case "oblique":
		style = "italic"
	}
	entry := &fontEntry{name: name, weight: weight, style: style, family: family}
	if face, err := font.ParseTTF(bytes.NewReader(data)); err == nil {
		entry.covers = func(r rune) bool {
			_, ok := face.NominalGlyph(r)
			return ok
		}
	} else {
		// 无法读取字符映射表（例如 woff2），视为覆盖所有字符
		engine.Logger().Warn("font coverage unavailable", "font", name, "error", err)
		entry.covers = func(rune) bool { return true }
	}
	return entry, nil
}

// session 是一次渲染调用的字体上下文，实现 layout.Typesetter 与 renderer.Renderer。
type session struct {
	supplied []*fontEntry
	base     []*fontEntry

	mu     sync.Mutex
	faces  map[faceKey]*canvas.FontFace
	chains map[string][]*fontEntry
}

type faceKey struct {
	entry *fontEntry
	size  float64
}

func newSession(assets []fonts.Asset, base []*fontEntry) (*session, error) {
	s := &session{
		base:   base,
		faces:  map[faceKey]*canvas.FontFace{},
		chains: map[string][]*fontEntry{},
	}
	for _, a := range assets {
		entry, err := newFontEntry(a.Name, a.Data, a.Weight, a.Style)
		if err != nil {
			return nil, err
		}
		s.supplied = append(s.supplied, entry)
	}
	return s, nil
}

// chain 返回字体回退链：最匹配的调用方字体在前，其余调用方字体随后，Go 字体兜底。
func (s *session) chain(spec layout.FontSpec) []*fontEntry {
	key := fmt.Sprintf("%s|%d|%s", strings.Join(spec.Family, ","), spec.Weight, spec.Style)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chains[key]; ok {
		return c
	}
	c := append(rankEntries(s.supplied, spec), bestEntries(s.base, spec)...)
	s.chains[key] = c
	return c
}

// rankEntries 按字族顺序、字形与字重距离排序，返回新切片。
func rankEntries(entries []*fontEntry, spec layout.FontSpec) []*fontEntry {
	out := append([]*fontEntry(nil), entries...)
	familyRank := func(e *fontEntry) int {
		for i, f := range spec.Family {
			if strings.EqualFold(f, e.name) {
				return i
			}
		}
		return len(spec.Family)
	}
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := familyRank(out[i]), familyRank(out[j])
		if fi != fj {
			return fi < fj
		}
		return distance(out[i], spec) < distance(out[j], spec)
	})
	return out
}

// bestEntries 从兜底字体中按字形与字重排序。
func bestEntries(entries []*fontEntry, spec layout.FontSpec) []*fontEntry {
	out := append([]*fontEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return distance(out[i], spec) < distance(out[j], spec)
	})
	return out
}

func distance(e *fontEntry, spec layout.FontSpec) float64 {
	d := math.Abs(float64(e.weight - spec.Weight))
	want := spec.Style
	if want == "oblique" {
		want = "italic"
	}
	if want == "" {
		want = "normal"
	}
	if e.style != want {
		d += 1000
	}
	return d
}

func (s *session) face(e *fontEntry, size float64) *canvas.FontFace {
	key := faceKey{entry: e, size: size}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.faces[key]; ok {
		return f
	}
	f := e.family.Face(toPt(size), color.Black, canvas.FontRegular, canvas.FontNormal)
	s.faces[key] = f
	return f
}

// run 是使用同一字体绘制的一段连续文本。
type run struct {
	text  string
	entry *fontEntry
}

// splitRuns 把文本按字符覆盖情况切分：每个字符使用回退链中第一个包含它的字体，
// 空白字符跟随前一段，都不包含时使用链首字体。
func splitRuns(text string, chain []*fontEntry) []run {
	if len(chain) == 0 || text == "" {
		return nil
	}
	var out []run
	var b strings.Builder
	var current *fontEntry
	for _, r := range text {
		entry := current
		if entry == nil || !isSpace(r) {
			entry = pick(r, chain)
		}
		if entry != current && b.Len() > 0 {
			out = append(out, run{text: b.String(), entry: current})
			b.Reset()
		}
		current = entry
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		out = append(out, run{text: b.String(), entry: current})
	}
	return out
}

func pick(r rune, chain []*fontEntry) *fontEntry {
	for _, e := range chain {
		if e.covers(r) {
			return e
		}
	}
	return chain[0]
}

func isSpace(r rune) bool { return r != '\n' && unicode.IsSpace(r) }

// measurer 按字体回退链测量文本宽度。
type measurer struct {
	s     *session
	chain []*fontEntry
	size  float64
}

func (m measurer) TextWidth(text string) float64 {
	w := 0.0
	for _, r := range splitRuns(text, m.chain) {
		w += m.s.face(r.entry, m.size).TextWidth(r.text)
	}
	return w
}
