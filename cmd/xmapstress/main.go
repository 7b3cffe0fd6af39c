// xmapstress 对 xshardmap 的引用守卫做并发压测，并校验计数不变量。
//
// 用法:
//
//	xmapstress [全局选项] run [命令参数]
//
// run 命令参数:
//
//	--shards      分片数量，须为 2 的幂（默认: 按 GOMAXPROCS 推导）
//	--workers     并发 worker 数量（默认: GOMAXPROCS）
//	--keys        预置键数量（默认: 64）
//	--ops         每个 worker 的操作次数（默认: 10000）
//	--seed        伪随机种子（默认: 1）
//	--config      xshardmap 配置文件（.yaml/.yml/.json）
//	--log-file    日志文件路径，按大小轮转（默认: 输出到 stderr）
//	--log-level   日志级别 debug/info/warn/error（默认: info）
//
// 每个 worker 随机执行 GetMut 自增、Get、Downgrade、MapMut、TryMapMut、
// MapSplit、MapSplitMut，以及 MapRef/MapMut 之后的链式投影。结束后校验所有计数之和等于自增次数，
// 且活跃租约指标归零。
//
// 退出码:
//
//	0: 压测完成且不变量成立
//	1: 不变量被破坏或运行错误
//	2: 参数错误
//
// 示例:
//
//	xmapstress run --workers 16 --ops 100000
//	xmapstress run --shards 1 --keys 4          # 单分片，制造高竞争
//	xmapstress run --config map.yaml --log-level debug
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// exitError 表示命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 表示参数错误，映射为退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xmapstress",
		Usage:     "xshardmap 引用守卫并发压测工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Commands:  []*cli.Command{createRunCommand()},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一映射退出码。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	err := app.Run(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		// flag 解析器已输出帮助信息
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}

// cliUsageMessages 是 urfave/cli 与 flag 包产生的参数错误特征。
var cliUsageMessages = []string{
	"flag provided but not defined",
	"flag needs an argument",
	"invalid value",
	"Required flag",
}

func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, m := range cliUsageMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
