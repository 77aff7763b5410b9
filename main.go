package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/config"
	"github.com/jordane95/wqb-hub/internal/logging"
	"github.com/jordane95/wqb-hub/internal/server"
	"github.com/jordane95/wqb-hub/internal/server/routes"
	"github.com/jordane95/wqb-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	syncOnly    bool
	warmup      bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["categories"] = len(cfg.Categories)
		fields["credentials"] = cfg.Global.AuthMode()
		fields["cache_root"] = cfg.Global.CacheRoot
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 磁盘缓存 → 基线名册 → 平台客户端 → checker/catalog → Fiber server，
	// 所有请求共享同一组缓存实例。
	svc, err := buildServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.syncOnly:
		report, err := svc.checker.Sync(ctx)
		if err != nil {
			fmt.Fprintf(stdErr, "基线同步失败: %v\n", err)
			return 1
		}
		return printJSON(report)
	case opts.warmup:
		report, err := svc.catalog.Warmup(ctx, false)
		if err != nil {
			fmt.Fprintf(stdErr, "目录预热失败: %v\n", err)
			return 1
		}
		return printJSON(report)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["credentials"] = cfg.Global.AuthMode()
	fields["cache_root"] = svc.store.Root()
	fields["baseline_entities"] = svc.roster.Len()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, svc, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("wqb-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		syncOnly   bool
		warmup     bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 WQB_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&syncOnly, "sync-only", false, "同步基线名册后输出报告并退出")
	fs.BoolVar(&warmup, "warmup", false, "预热平台设置与全部数据集目录后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if syncOnly && warmup {
		return cliOptions{}, fmt.Errorf("-sync-only 与 -warmup 不能同时使用")
	}

	path := os.Getenv("WQB_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		syncOnly:    syncOnly,
		warmup:      warmup,
	}, nil
}

func printJSON(v any) int {
	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stdErr, "输出结果失败: %v\n", err)
		return 1
	}
	return 0
}

func startHTTPServer(cfg *config.Config, svc *services, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Checker:    svc.checker,
		Catalog:    svc.catalog,
		ListenPort: port,
		Threshold:  cfg.Global.Threshold,
		Years:      cfg.Global.Years,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, routes.Diagnostics{
		Store:      svc.store,
		Categories: svc.catalog.Registry(),
		Baseline:   svc.roster,
	})

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
