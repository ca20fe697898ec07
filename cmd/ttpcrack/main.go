package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "ttpcrack/internal/config"
	"ttpcrack/internal/diag"
	"ttpcrack/internal/pipeline"
	"ttpcrack/pkg/contract"
)

// 版本号，发布构建时由 -ldflags 注入。
var version = "dev"

var (
	pipelineRun   = pipeline.Run
	pipelineSplit = pipeline.Split
)

// 退出码：0 成功；1 运行期失败；3 配置/前置条件失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// exitError 携带退出码；消息已含阶段前缀。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, prefix string, err error) error {
	return &exitError{code: code, err: fmt.Errorf("%s: %w", prefix, err)}
}

func run(args []string) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "%v\n", err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fprintf(os.Stderr, "%v\n", err)
	return exitConfig
}

// runSearch 为根命令：加载配置 → 装配 → 运行流水线 → 打印结果。
func runSearch(cmd *cobra.Command, opts *options, args []string) error {
	start := time.Now()
	if opts.initDir != "" {
		return initConfig(cmd, opts.initDir)
	}

	cfg, err := loadConfig(cmd, opts, args)
	if err != nil {
		return fail(exitConfig, "配置解析失败", err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		return fail(exitConfig, "配置校验失败", err)
	}
	if cfg.Search.Seed == 0 {
		cfg.Search.Seed = randomSeed()
	}

	logger := diag.NewLogger(diag.NewCorrID(), cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	ctx := cmd.Context()
	shutdown, err := diag.SetupTracing(cfg.Tracing.Path, version)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "tracing setup failed", &start)
		return fail(exitConfig, "追踪初始化失败", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	// 预检：若使用文件系统 Writer，检查输出目录的可写性
	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, "输出目录不可写或无法创建", err)
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, "装配失败", err)
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(os.Stderr, opts.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	logger.Info("config", "effective", map[string]string{
		"inputs":     strings.Join(cfg.Inputs, ","),
		"table":      cfg.Table,
		"output":     cfg.Output,
		"restarts":   strconv.Itoa(cfg.Search.Restarts),
		"iterations": strconv.Itoa(cfg.Search.Iterations),
		"workers":    strconv.Itoa(cfg.Search.Workers),
		"seed":       strconv.FormatUint(cfg.Search.Seed, 10),
		"splitter":   cfg.Components.Splitter,
		"assembler":  cfg.Components.Assembler,
		"writer":     cfg.Components.Writer,
	})

	t := logger.Start("pipeline", "run")
	rec, err := pipelineRun(ctx, comp, set, logger)
	writeMetrics(cfg.Metrics.Textfile, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		return fail(exitCodeFor(code), "运行失败", err)
	}
	t.Finish("run", int64(len(rec.P1)))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Done. Best score: %v\n", rec.Score)
	_, _ = fmt.Fprintf(out, "Recovered plaintexts written to %s\n", cfg.Output)
	if cfg.Sidecar != "" {
		_, _ = fmt.Fprintf(out, "Report written to %s\n", cfg.Sidecar)
	}
	return nil
}

// runSplit 为 split 子命令：将单个 blob 切成 file1.bin/file2.bin。
func runSplit(cmd *cobra.Command, opts *options, blob string) error {
	start := time.Now()
	cfg, err := loadConfig(cmd, opts, nil)
	if err != nil {
		return fail(exitConfig, "配置解析失败", err)
	}
	logger := diag.NewLogger(diag.NewCorrID(), cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()
	if err := preflightCheckOutputDir(cfg); err != nil {
		return fail(exitConfig, "输出目录不可写或无法创建", err)
	}
	comp, err := cfgpkg.BuildComponents(cfg)
	if err != nil {
		return fail(exitConfig, "装配失败", err)
	}
	out := [2]contract.FileID{contract.FileID(opts.out1), contract.FileID(opts.out2)}
	ct, err := pipelineSplit(cmd.Context(), comp, blob, out, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "split failed", &start)
		return fail(exitCodeFor(code), "切分失败", err)
	}
	logger.InfoFinish("pipeline", "split", start, int64(2*ct.Len()))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Split %d bytes into %s and %s\n", 2*ct.Len(), opts.out1, opts.out2)
	return nil
}

// exitCodeFor: 输入/长度/频率表/配置问题属于前置条件失败。
func exitCodeFor(code diag.Code) int {
	switch code {
	case diag.CodeInput, diag.CodeLength, diag.CodeTable, diag.CodeConfig:
		return exitConfig
	}
	return exitRuntime
}

// loadConfig 按 Defaults < 文件 < ENV < CLI 合并。
func loadConfig(cmd *cobra.Command, opts *options, args []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	// 配置来源：ENV JSON > --config > ENV 文件 > 工作目录默认文件
	if s := os.Getenv("TTPCRACK_CONFIG_JSON"); s != "" {
		base, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	} else if path := configPath(opts.config); path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖：只采纳显式给出的旗标
	over := cfgpkg.NewOverlay()
	fl := cmd.Flags()
	if fl.Changed("table") {
		over.Table = opts.table
	}
	if fl.Changed("output") {
		over.Output = opts.output
	}
	if fl.Changed("sidecar") {
		over.Sidecar = opts.sidecar
	}
	if fl.Changed("restarts") {
		over.Search.Restarts = opts.restarts
	}
	if fl.Changed("iterations") {
		over.Search.Iterations = opts.iterations
	}
	if fl.Changed("workers") {
		over.Search.Workers = opts.workers
	}
	if fl.Changed("seed") {
		over.Search.Seed = opts.seed
	}
	if fl.Changed("log-level") {
		over.Logging.Level = opts.logLevel
	}
	if fl.Changed("trace") {
		over.Tracing.Path = opts.trace
	}
	if fl.Changed("metrics-textfile") {
		over.Metrics.Textfile = opts.metrics
	}
	if len(args) > 0 {
		over.Inputs = args
	}
	return cfgpkg.Merge(cfg, over), nil
}

// configPath: 显式路径 > TTPCRACK_CONFIG_FILE > ./config.json|config.yaml|config.yml（若存在）。
func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if s := os.Getenv("TTPCRACK_CONFIG_FILE"); s != "" {
		return s
	}
	for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func randomSeed() uint64 {
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}

func writeMetrics(path string, logger *diag.Logger) {
	if path == "" {
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := diag.WriteTextfile(path); err != nil {
		logger.Warn("metrics", "textfile write failed", map[string]string{"path": path, "err": err.Error()})
	}
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 规则：
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
// 仅针对 fs writer 生效；其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	writerName := strings.TrimSpace(cfg.Components.Writer)
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		dir = "."
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	// 目录不存在：检查父目录可写性
	parent := filepath.Dir(dir)
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
