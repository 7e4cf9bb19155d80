package fonts

import (
	"context"
	"fmt"
)

// Fallback 描述调用方未提供字体时使用的后备字体。
// FetchWeight 用于下载，DeclaredWeight 写入返回的 Asset。
type Fallback struct {
	Family         string
	FetchWeight    int
	DeclaredWeight int
	Style          string
}

// DefaultFallback 是内置的后备字体参数。
var DefaultFallback = Fallback{
	Family:         "Noto Sans JP",
	FetchWeight:    600,
	DeclaredWeight: 500,
	Style:          "normal",
}

// Resolver 选择调用方字体，或下载一份后备字体。
type Resolver struct {
	Loader Loader
	// Fallback 为零值时使用 DefaultFallback。
	Fallback Fallback
}

// NewResolver 返回使用 Google Fonts 下载后备字体的 Resolver。
func NewResolver() *Resolver {
	return &Resolver{Loader: &GoogleLoader{}}
}

// Resolve 在 supplied 非空时原样返回（不合并、不去重）；
// 否则下载一份后备字体。下载失败不重试，错误包装 ErrFontFetch。
func (r *Resolver) Resolve(ctx context.Context, supplied []Asset) ([]Asset, error) {
	if len(supplied) > 0 {
		return supplied, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fb := r.Fallback
	if fb.Family == "" {
		fb = DefaultFallback
	}
	if r.Loader == nil {
		return nil, fmt.Errorf("%w: 未配置字体加载器", ErrFontFetch)
	}
	data, err := r.Loader.Load(ctx, Request{Family: fb.Family, Weight: fb.FetchWeight})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFontFetch, fb.Family, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: 字体数据为空", ErrFontFetch, fb.Family)
	}
	return []Asset{{
		Name:   fb.Family,
		Data:   data,
		Weight: fb.DeclaredWeight,
		Style:  fb.Style,
	}}, nil
}
