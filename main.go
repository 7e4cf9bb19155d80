package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ByLCY/ogimage/config"
	"github.com/ByLCY/ogimage/engine"
	"github.com/ByLCY/ogimage/fonts"
	"github.com/ByLCY/ogimage/layout"
	"github.com/ByLCY/ogimage/markup"
	"github.com/ByLCY/ogimage/render"
	canvasrenderer "github.com/ByLCY/ogimage/renderer/canvas"
	"github.com/ByLCY/ogimage/response"
	"github.com/ByLCY/ogimage/server"
)

const usage = `用法:
  ogimage render [flags]   渲染标记文件为 PNG 或 SVG
  ogimage serve  [flags]   启动 HTTP 服务
`

func main() {
	args := os.Args[1:]
	cmd := "render"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	var err error
	switch cmd {
	case "render":
		err = renderCmd(args)
	case "serve":
		err = serveCmd(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("ogimage %s: %v", cmd, err)
	}
}

// renderFlags 是 render 子命令的参数。
type renderFlags struct {
	input     string
	output    string
	width     float64
	height    float64
	format    string
	data      string
	fonts     []string
	debug     bool
	debugJSON string
	config    string
	verbose   bool
}

func parseRenderFlags(args []string) (*renderFlags, *flag.FlagSet, error) {
	f := &renderFlags{}
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.StringVarP(&f.input, "in", "i", "-", "标记文件路径，- 表示标准输入")
	fs.StringVarP(&f.output, "out", "o", "output/og.png", "输出文件路径")
	fs.Float64Var(&f.width, "width", 0, "画布宽度（px）")
	fs.Float64Var(&f.height, "height", 0, "画布高度（px）")
	fs.StringVarP(&f.format, "format", "f", "", "输出格式 png 或 svg，默认按输出文件扩展名判断")
	fs.StringVar(&f.data, "data", "", "绑定到标记的 JSON 数据")
	fs.StringArrayVar(&f.fonts, "font", nil, "字体，格式 名称=路径[:字重[:字形]]，可重复")
	fs.BoolVar(&f.debug, "debug", false, "绘制盒子轮廓")
	fs.StringVar(&f.debugJSON, "debug-json", "", "布局调试 JSON 输出路径")
	fs.StringVarP(&f.config, "config", "c", "", "YAML 配置文件")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "输出调试日志")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

func renderCmd(args []string) error {
	f, fs, err := parseRenderFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	setup(cfg, f.verbose)

	var data any
	if f.data != "" {
		if err := json.Unmarshal([]byte(f.data), &data); err != nil {
			return fmt.Errorf("解析 data JSON 失败: %w", err)
		}
	}
	assets, err := loadFonts(f.fonts)
	if err != nil {
		return err
	}
	src, err := readInput(f.input)
	if err != nil {
		return err
	}
	format := f.format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(f.output)), ".")
	}

	req := render.Request{
		Element: markup.Markup(src),
		Format:  render.Format(format),
		Fonts:   assets,
		Debug:   f.debug,
		Data:    data,
	}
	if fs.Changed("width") {
		req.Width = &f.width
	}
	if fs.Changed("height") {
		req.Height = &f.height
	}

	p := pipeline(cfg)
	ctx := context.Background()
	prep, err := p.Prepare(ctx, req)
	if err != nil {
		return fmt.Errorf("渲染失败: %w", err)
	}
	if err := run(ctx, p, prep, f.output); err != nil {
		return err
	}
	if f.debugJSON != "" {
		if err := writeDebug(ctx, prep, f.debugJSON); err != nil {
			return err
		}
	}
	fmt.Printf("已生成图片：%s\n", f.output)
	return nil
}

// run 对已准备好的请求执行布局与光栅化，并写入输出文件。
func run(ctx context.Context, p *render.Pipeline, prep *render.Prepared, outputPath string) error {
	out, err := p.Render(ctx, prep.Tree, prep.Options, prep.Format)
	if err != nil {
		return fmt.Errorf("渲染失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	return nil
}

// writeDebug 用同一份元素树与字体再布局一次，输出布局结果 JSON。
func writeDebug(ctx context.Context, prep *render.Prepared, debugPath string) error {
	result, err := canvasrenderer.Default().Build(ctx, prep.Tree, prep.Options)
	if err != nil {
		return fmt.Errorf("布局计算失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "YAML 配置文件")
	listen := fs.StringP("listen", "l", "", "监听地址，覆盖配置文件")
	verbose := fs.BoolP("verbose", "v", false, "输出调试日志")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	setup(cfg, *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline(cfg)
	// 预先初始化引擎，失败时直接退出
	if err := p.Runtime.EnsureReady(ctx); err != nil {
		return err
	}
	h := server.New(response.NewBuilder(p), server.Options{
		MaxMarkupBytes: cfg.MaxMarkupBytes,
		Compress:       cfg.Compress,
		MinifySVG:      cfg.MinifySVG,
	})
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("listening", "addr", cfg.Listen)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// setup 配置日志与 GOMAXPROCS。
func setup(cfg *config.Config, verbose bool) {
	level, _ := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	engine.SetLogger(logger)
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
}

func pipeline(cfg *config.Config) *render.Pipeline {
	p := render.Default()
	p.Fonts = cfg.Resolver()
	return p
}

func readInput(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("无法打开标记文件 %s: %w", path, err)
		}
		defer file.Close()
		r = file
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("读取标记失败: %w", err)
	}
	return string(b), nil
}

func loadFonts(specs []string) ([]fonts.Asset, error) {
	var out []fonts.Asset
	for _, spec := range specs {
		a, err := parseFontSpec(spec)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(a.path)
		if err != nil {
			return nil, fmt.Errorf("读取字体 %s 失败: %w", a.path, err)
		}
		a.asset.Data = data
		out = append(out, a.asset)
	}
	return out, nil
}

type fontSpec struct {
	asset fonts.Asset
	path  string
}

// parseFontSpec 解析 名称=路径[:字重[:字形]]。
func parseFontSpec(spec string) (fontSpec, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return fontSpec{}, fmt.Errorf("字体参数 %q 格式应为 名称=路径[:字重[:字形]]", spec)
	}
	parts := strings.Split(rest, ":")
	fs := fontSpec{asset: fonts.Asset{Name: name, Weight: 400, Style: "normal"}, path: parts[0]}
	if len(parts) > 1 && parts[1] != "" {
		w, err := strconv.Atoi(parts[1])
		if err != nil {
			return fontSpec{}, fmt.Errorf("字体 %s 的字重无效: %w", name, err)
		}
		fs.asset.Weight = w
	}
	if len(parts) > 2 && parts[2] != "" {
		fs.asset.Style = parts[2]
	}
	if len(parts) > 3 {
		return fontSpec{}, fmt.Errorf("字体参数 %q 格式应为 名称=路径[:字重[:字形]]", spec)
	}
	return fs, nil
}
