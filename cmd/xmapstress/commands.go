package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omeyang/xshard/pkg/util/xshardmap"
)

const (
	defaultKeys = 64
	defaultOps  = 10000

	// 日志文件轮转参数，长时间压测时避免单个文件无限增长。
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 5
)

func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "执行一轮并发压测并校验计数不变量",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "shards",
				Usage: "分片数量（2 的幂，0 表示自动）",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "并发 worker 数量",
				Value:   runtime.GOMAXPROCS(0),
			},
			&cli.IntFlag{
				Name:    "keys",
				Aliases: []string{"k"},
				Usage:   "预置键数量",
				Value:   defaultKeys,
			},
			&cli.IntFlag{
				Name:    "ops",
				Aliases: []string{"n"},
				Usage:   "每个 worker 的操作次数",
				Value:   defaultOps,
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "伪随机种子",
				Value: 1,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "xshardmap 配置文件（.yaml/.yml/.json）",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径（按大小轮转，默认输出到 stderr）",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := parseRunFlags(cmd)
			if err != nil {
				return err
			}
			return cmdRun(ctx, cmd, cfg)
		},
	}
}

// parseRunFlags 校验命令参数。
// 配置文件先加载，--shards 显式指定时覆盖文件中的分片数。
func parseRunFlags(cmd *cli.Command) (stressConfig, error) {
	cfg := stressConfig{
		logFile: cmd.String("log-file"),
		workers: cmd.Int("workers"),
		keys:    cmd.Int("keys"),
		ops:     cmd.Int("ops"),
		seed:    cmd.Uint64("seed"),
	}
	if cfg.workers <= 0 {
		return cfg, usagef("--workers 必须大于 0: %d", cfg.workers)
	}
	if cfg.keys <= 0 {
		return cfg, usagef("--keys 必须大于 0: %d", cfg.keys)
	}
	if cfg.ops < 0 {
		return cfg, usagef("--ops 不能为负数: %d", cfg.ops)
	}

	if err := cfg.level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return cfg, usagef("无效的日志级别 %q", cmd.String("log-level"))
	}

	if path := cmd.String("config"); path != "" {
		fileCfg, err := xshardmap.LoadConfigFile(path)
		if err != nil {
			return cfg, fmt.Errorf("加载配置 %s: %w", path, err)
		}
		cfg.mapOpts = append(cfg.mapOpts, fileCfg.Options()...)
	}
	if cmd.IsSet("shards") {
		cfg.mapOpts = append(cfg.mapOpts, xshardmap.WithShardCount(cmd.Int("shards")))
	}
	return cfg, nil
}

func cmdRun(ctx context.Context, cmd *cli.Command, cfg stressConfig) error {
	logOut, closeLog := openLogOutput(cmd.Root().ErrWriter, cfg.logFile)
	defer closeLog()
	runID := uuid.NewString()
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.level})).
		With(slog.String("run_id", runID))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("xmapstress: meter provider shutdown failed", "error", err)
		}
	}()

	opts := append([]xshardmap.Option{
		xshardmap.WithLogger(logger),
		xshardmap.WithMeterProvider(provider),
	}, cfg.mapOpts...)
	m, err := xshardmap.New[string, counters](opts...)
	if err != nil {
		return usagef("创建分片表: %v", err)
	}

	res, err := stress(ctx, logger, m, cfg)
	if err != nil {
		return err
	}

	rep, err := collectReport(ctx, reader)
	if err != nil {
		return fmt.Errorf("采集指标: %w", err)
	}

	out := cmd.Root().Writer
	printResult(out, runID, m.ShardCount(), cfg, res)
	rep.print(out)

	if violations := res.verify(rep); len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintf(cmd.Root().ErrWriter, "不变量被破坏: %s\n", v)
		}
		return &exitError{code: 1}
	}
	fmt.Fprintln(out, "结果: 通过")
	return nil
}

// openLogOutput 返回日志输出目标。path 为空时使用 fallback。
func openLogOutput(fallback io.Writer, path string) (io.Writer, func()) {
	if path == "" {
		return fallback, func() {}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		Compress:   true,
	}
	return lj, func() { _ = lj.Close() }
}

// setupSignalHandler 设置信号处理。
// 设计决策: 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
