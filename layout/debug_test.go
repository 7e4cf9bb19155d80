package layout

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncodeDebugJSON(t *testing.T) {
	black := Color{A: 1}
	res := &Result{
		Width:  200,
		Height: 100,
		Rects:  []Rect{{Width: 200, Height: 100, Fill: &black}},
		Texts:  []TextBox{{Content: "a < b & c", Width: 50, Height: 20}},
	}
	var buf bytes.Buffer
	if err := EncodeDebugJSON(&buf, res); err != nil {
		t.Fatalf("EncodeDebugJSON 失败: %v", err)
	}
	if !strings.Contains(buf.String(), "a < b & c") {
		t.Fatalf("文本不应被转义: %s", buf.String())
	}
	var dump struct {
		Width  float64        `json:"width"`
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(buf.Bytes(), &dump); err != nil {
		t.Fatalf("JSON 无法解析: %v", err)
	}
	if dump.Width != 200 || dump.Counts["rects"] != 1 || dump.Counts["texts"] != 1 || dump.Counts["outlines"] != 0 {
		t.Fatalf("统计信息不正确: %+v", dump)
	}
}

func TestWriteDebugJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.json")
	if err := WriteDebugJSON(&Result{Width: 1, Height: 1}, path); err != nil {
		t.Fatalf("WriteDebugJSON 失败: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("未生成文件: %v", err)
	}
	if err := WriteDebugJSON(nil, path); err == nil {
		t.Fatalf("空结果应返回错误")
	}
}
