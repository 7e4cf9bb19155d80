package markup

import "testing"

func TestParseStyle(t *testing.T) {
	style, err := ParseStyle(`display:flex; Font-Size: 32px; border: 1px solid #000; color: red !important; background: rgba(0, 0, 0, 0.5)`)
	if err != nil {
		t.Fatalf("ParseStyle failed: %v", err)
	}
	want := map[string]string{
		"display":    "flex",
		"font-size":  "32px",
		"border":     "1px solid #000",
		"color":      "red",
		"background": "rgba(0,0,0,0.5)",
	}
	for k, v := range want {
		if style[k] != v {
			t.Fatalf("%s = %q, want %q", k, style[k], v)
		}
	}
}

func TestCSSName(t *testing.T) {
	cases := map[string]string{
		"fontSize":        "font-size",
		"backgroundColor": "background-color",
		"display":         "display",
		"Flex-Direction":  "flex-direction",
	}
	for in, want := range cases {
		if got := CSSName(in); got != want {
			t.Fatalf("CSSName(%q) = %q, want %q", in, got, want)
		}
	}
}
