package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hedera-swap-plugin/internal/api"
	"hedera-swap-plugin/internal/config"
	"hedera-swap-plugin/internal/observability/alerting"
	"hedera-swap-plugin/internal/task"
	"hedera-swap-plugin/pkg/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the asynchronous job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if address != "" {
				cfg.Server.Address = address
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				logger.L().Error("启动失败", slog.Any("error", err))
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rt.Close(closeCtx); err != nil {
					logger.L().Warn("关闭运行时出错", slog.Any("error", err))
				}
			}()

			store, queue, err := newJobs(ctx, cfg.Jobs)
			if err != nil {
				return err
			}
			jobs := task.NewService(store, queue, task.WithCatalog(rt.manager))
			defer func() {
				if err := jobs.Close(); err != nil {
					logger.L().Warn("关闭任务服务出错", slog.Any("error", err))
				}
			}()
			processor := task.NewProcessor(rt.manager, store, queue,
				task.WithWorkerCount(cfg.Jobs.Workers),
				task.WithObserver(func(method string, status task.Status) {
					rt.metrics.ObserveJob(method, string(status))
				}),
				task.WithAlerts(newAlerts(cfg.Alerts)),
			)

			server := api.NewServer(cfg.Server.Address, rt.manager,
				api.WithJobs(jobs),
				api.WithMetrics(rt.metrics),
				api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
				api.WithRateLimit(cfg.Server.RatePerMinute),
				api.WithMaxConcurrent(cfg.Server.MaxConcurrent),
				api.WithRequestTimeout(cfg.Server.RequestTimeout.Duration),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return processor.Start(gctx) })
			g.Go(func() error { return server.Start(gctx) })
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("swapd 异常退出", slog.Any("error", err))
				return err
			}
			logger.L().Info("swapd 已停止")
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "override server.address")
	return cmd
}

// newAlerts 组装告警渠道：日志渠道始终开启，配置了 webhook 时追加 Slack。
func newAlerts(cfg config.AlertsConfig) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alerts")}}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    &alerting.WebhookSender{URL: cfg.SlackWebhookURL},
			ChannelID: cfg.SlackChannel,
		})
	}
	return alerting.NewFanout(notifiers...)
}
