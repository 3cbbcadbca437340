package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyerfyer/pdf-indexer/config"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// 全局命令行参数
type rootOptions struct {
	configFile string // 配置文件路径
	logLevel   string // 日志级别，覆盖配置文件
}

// newRootCmd 创建根命令
// 不带子命令时处理配置中的默认PDF并执行示例查询
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pdf-indexer",
		Short:         "Extract paragraphs, tables and image captions from a PDF into a vector index",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return runDefault(ctx, a, cmd.OutOrStdout())
			})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "config.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug/info/warn/error)")

	cmd.AddCommand(
		newIngestCmd(opts),
		newQueryCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// withApp 加载配置、组装组件并在返回时释放
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize components")
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// runDefault 处理默认PDF并打印示例查询的结果
func runDefault(ctx context.Context, a *app, out io.Writer) error {
	pc := a.cfg.Pipeline

	if _, err := a.pipeline.Process(ctx, pc.InputPath); err != nil {
		a.logger.WithFields(logrus.Fields{
			"path":  pc.InputPath,
			"error": err.Error(),
		}).Error("Processing failed")
		return err
	}
	fmt.Fprintln(out, "PDF metadata extraction and storage completed.")

	results, err := a.pipeline.Query(ctx, pc.Query, pc.TopK)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nQuery Results:")
	return printPayloads(out, services.Payloads(results))
}

// printPayloads 逐条输出缩进两个空格的JSON
func printPayloads(out io.Writer, payloads []models.Payload) error {
	for _, p := range payloads {
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		if _, err := fmt.Fprintln(out, string(b)); err != nil {
			return err
		}
	}
	return nil
}
