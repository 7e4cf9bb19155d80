package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// debugDump 是调试 JSON 的顶层结构，counts 便于快速核对元素数量。
type debugDump struct {
	Width  float64        `json:"width"`
	Height float64        `json:"height"`
	Counts map[string]int `json:"counts"`
	Result *Result        `json:"result"`
}

// EncodeDebugJSON 把布局结果写为缩进 JSON，文本中的 <、> 与 & 不转义。
func EncodeDebugJSON(w io.Writer, res *Result) error {
	if res == nil {
		return errors.New("layout: 布局结果为空")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(debugDump{
		Width:  res.Width,
		Height: res.Height,
		Counts: map[string]int{"rects": len(res.Rects), "texts": len(res.Texts), "outlines": len(res.Outlines)},
		Result: res,
	})
}

// WriteDebugJSON 将布局结果输出到 path，便于调试或可视化。
func WriteDebugJSON(res *Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeDebugJSON(f, res); err != nil {
		f.Close()
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return f.Close()
}
