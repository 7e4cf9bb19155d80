package binding

import (
	"encoding/json"
	"testing"

	"github.com/ByLCY/ogimage/markup"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("解析测试数据失败: %v", err)
	}
	return v
}

func TestInterpolate(t *testing.T) {
	data := decode(t, `{"title":"Hello","post":{"views":1200,"tags":["go","svg"]},"ratio":0.5}`)
	cases := []struct {
		in, want string
	}{
		{"${title}, world", "Hello, world"},
		{"${ post.views } views", "1200 views"},
		{"#${post.tags[1]}", "#svg"},
		{"${ratio}", "0.5"},
		{"${missing.path}", "${missing.path}"},
		{"${post.tags[9]}", "${post.tags[9]}"},
		{"no placeholders", "no placeholders"},
	}
	for _, c := range cases {
		if got := Interpolate(c.in, data); got != c.want {
			t.Fatalf("Interpolate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInterpolateNilData(t *testing.T) {
	if got := Interpolate("${title}", nil); got != "${title}" {
		t.Fatalf("nil data 应保持原文，实际 %q", got)
	}
}

func TestInterpolateTreeCopies(t *testing.T) {
	tree := markup.El("div", map[string]string{"color": "${theme.fg}"},
		markup.Text("Hi ${name}"),
	)
	tree.Attrs = map[string]string{"title": "${name}"}
	data := map[string]any{"name": "Ada", "theme": map[string]any{"fg": "#fff"}}

	out := InterpolateTree(tree, data)
	if out == tree {
		t.Fatalf("应返回新树")
	}
	if out.Children[0].Text != "Hi Ada" {
		t.Fatalf("文本替换失败: %q", out.Children[0].Text)
	}
	if out.Style["color"] != "#fff" || out.Attrs["title"] != "Ada" {
		t.Fatalf("样式或属性替换失败: %v %v", out.Style, out.Attrs)
	}
	if tree.Children[0].Text != "Hi ${name}" || tree.Style["color"] != "${theme.fg}" {
		t.Fatalf("原树被修改")
	}
}

func TestInterpolateTreeWithoutData(t *testing.T) {
	tree := markup.El("div", nil)
	if got := InterpolateTree(tree, nil); got != tree {
		t.Fatalf("data 为空时应返回原树")
	}
}
