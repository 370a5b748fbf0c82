// =============================================================================
// Roundtable 主入口
// =============================================================================
// 使用方法:
//
//	roundtable serve [--config config.yaml]   # 启动服务（指定配置时 persona 热更新）
//	roundtable config [--config config.yaml] # 校验配置并打印生效摘要
//	roundtable migrate <subcommand>           # 数据库迁移
//	roundtable health [--addr URL]            # 探测 /readyz
//	roundtable version
// =============================================================================

// @title Roundtable API
// @version 1.0.0
// @description Roundtable orchestrates multi-persona group conversations over LLM backends.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/telemetry"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// subcommand 返回进程退出码
type subcommand struct {
	summary string
	run     func(args []string, stdout, stderr io.Writer) int
}

var subcommands = map[string]subcommand{
	"serve":   {"Start the Roundtable server", runServe},
	"config":  {"Validate configuration and print the effective settings", runConfigCheck},
	"migrate": {"Database migration commands", runMigrateCommand},
	"health":  {"Check server readiness", runHealthCheck},
	"version": {"Show version information", runVersion},
}

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}
	cmd, ok := subcommands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}
	return cmd.run(args[1:], stdout, stderr)
}

// flagExit -h 正常退出，其余解析错误按用法错误处理
func flagExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	return 2
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Roundtable - multi-persona conversation orchestrator")
	fmt.Fprintln(w, "\nUsage:\n  roundtable <command> [options]\n\nCommands:")
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, subcommands[name].summary)
	}
	_ = tw.Flush()
	fmt.Fprintln(w, "\nRun 'roundtable <command> -h' for command options.")
}

// =============================================================================
// 🖥️ serve
// =============================================================================

func runServe(args []string, _, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML); personas reload on change")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := newLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting Roundtable",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 遥测初始化失败不阻止启动，tel 为 nil 时 Shutdown 是空操作
	tel, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if err := NewServer(cfg, *configPath, logger, tel).Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("Roundtable stopped")
	return 0
}

// loadConfig 文件 → 环境变量覆盖 → 校验
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🧾 config
// =============================================================================

// runConfigCheck 打印生效配置摘要；密钥只显示是否已配置
func runConfigCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "HTTP port:\t%d\n", cfg.Server.HTTPPort)
	fmt.Fprintf(tw, "Metrics port:\t%d\n", cfg.Server.MetricsPort)
	fmt.Fprintf(tw, "Store:\t%s\n", cfg.Store.Type)
	fmt.Fprintf(tw, "Preview cache:\t%t\n", cfg.Cache.Enabled)
	fmt.Fprintf(tw, "Telemetry:\t%t\n", cfg.Telemetry.Enabled)
	fmt.Fprintf(tw, "Personas:\t%d\n", len(cfg.Personas))
	for _, p := range cfg.Personas {
		fmt.Fprintf(tw, "  %s\t%s/%s\n", p.ID, p.Binding.Provider, p.Binding.Model)
	}

	provs := cfg.Providers.ProviderConfigs()
	names := make([]string, 0, len(provs.Providers))
	for name := range provs.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(tw, "Default provider:\t%s/%s (%s)\n", provs.Default.Provider, provs.Default.Model, keyState(provs.Default.APIKey))
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, keyState(provs.Providers[name].APIKey))
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func keyState(key string) string {
	if key == "" {
		return "no key"
	}
	return "key set"
}

// =============================================================================
// 🏥 health
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/readyz")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

func runVersion(_ []string, stdout, _ io.Writer) int {
	fmt.Fprintf(stdout, "Roundtable %s\n  Build Time: %s\n  Git Commit: %s\n", Version, BuildTime, GitCommit)
	return 0
}
