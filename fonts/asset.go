// Package fonts 提供渲染所需的字体资源：调用方提供的字体，或按需下载的后备字体。
package fonts

import (
	"context"
	"errors"
)

// ErrFontFetch 表示后备字体下载失败。
var ErrFontFetch = errors.New("fonts: 后备字体获取失败")

// Asset 是一份可直接交给布局引擎的字体数据。
type Asset struct {
	Name   string `json:"name"`
	Data   []byte `json:"data"`
	Weight int    `json:"weight"`
	Style  string `json:"style"`
}

// Request 描述一次远程字体下载。
type Request struct {
	Family string
	Weight int
}

// Loader 按字族与字重获取字体文件的字节数据。
type Loader interface {
	Load(ctx context.Context, req Request) ([]byte, error)
}

// LoaderFunc 把函数适配为 Loader。
type LoaderFunc func(ctx context.Context, req Request) ([]byte, error)

// Load 调用 f(ctx, req)。
func (f LoaderFunc) Load(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }
