package fonts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// DefaultCSSURL 是 Google Fonts CSS2 接口地址。
const DefaultCSSURL = "https://fonts.googleapis.com/css2"

// maxFontBytes 是单个响应的默认大小上限。
const maxFontBytes = 32 << 20

// ErrTooLarge 表示样式表或字体文件超过 MaxBytes。
var ErrTooLarge = errors.New("fonts: 字体响应过大")

// GoogleLoader 通过 Google Fonts 下载字体：先请求样式表，再下载其中第一个 src: url(...)。
// UserAgent 为空时使用 Go 默认的 UA，此时 Google 返回 TrueType 字体。
type GoogleLoader struct {
	Client    *http.Client
	CSSURL    string
	UserAgent string
	// MaxBytes 限制单个响应的大小，为 0 时使用 32 MiB。
	MaxBytes int64
}

// Load 实现 Loader。
func (g *GoogleLoader) Load(ctx context.Context, req Request) ([]byte, error) {
	base := g.CSSURL
	if base == "" {
		base = DefaultCSSURL
	}
	family := url.QueryEscape(req.Family)
	if req.Weight > 0 {
		family += ":wght@" + strconv.Itoa(req.Weight)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	stylesheet, err := g.get(ctx, base+sep+"family="+family)
	if err != nil {
		return nil, fmt.Errorf("获取字体样式表失败: %w", err)
	}
	src, err := FontURL(stylesheet)
	if err != nil {
		return nil, err
	}
	data, err := g.get(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("下载字体文件失败: %w", err)
	}
	return data, nil
}

func (g *GoogleLoader) get(ctx context.Context, target string) ([]byte, error) {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if g.UserAgent != "" {
		httpReq.Header.Set("User-Agent", g.UserAgent)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: 状态码 %d", target, resp.StatusCode)
	}
	limit := g.MaxBytes
	if limit <= 0 {
		limit = maxFontBytes
	}
	// 多读一个字节以区分恰好等于上限与被截断
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("GET %s: %w（上限 %d 字节）", target, ErrTooLarge, limit)
	}
	return data, nil
}

// FontURL 从 @font-face 样式表中取出第一个 src 声明里的 url(...)。
func FontURL(stylesheet []byte) (string, error) {
	p := css.NewParser(parse.NewInput(bytes.NewReader(stylesheet)), false)
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("解析字体样式表失败: %w", err)
			}
			return "", fmt.Errorf("字体样式表中没有 src: url(...)")
		case css.DeclarationGrammar:
			if string(data) != "src" {
				continue
			}
			for _, tok := range p.Values() {
				if tok.TokenType == css.URLToken {
					return unwrapURL(string(tok.Data)), nil
				}
			}
		}
	}
}

// unwrapURL 去掉 url( ) 与引号。
func unwrapURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "url(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[4 : len(s)-1])
	}
	return strings.Trim(s, `"'`)
}
