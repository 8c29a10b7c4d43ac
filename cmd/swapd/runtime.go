package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hedera-swap-plugin/internal/config"
	"hedera-swap-plugin/internal/ledger/hedera"
	"hedera-swap-plugin/internal/mirror"
	"hedera-swap-plugin/internal/networks"
	"hedera-swap-plugin/internal/observability/metrics"
	"hedera-swap-plugin/internal/saucerswap"
	"hedera-swap-plugin/internal/task"
	"hedera-swap-plugin/pkg/logger"
	"hedera-swap-plugin/pkg/plugin"
	ssplugin "hedera-swap-plugin/plugins/saucerswap"
)

// runtime 持有一次进程运行期间共享的组件。
type runtime struct {
	cfg     *config.Config
	ledger  *hedera.Adapter
	manager *plugin.Manager
	metrics *metrics.Metrics
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

// newRuntime 按配置连接账本、构建插件管理器并启动全部插件。
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	table, err := networks.LoadTable(cfg.NetworksFile)
	if err != nil {
		return nil, fmt.Errorf("加载网络配置失败: %w", err)
	}

	adapter, err := hedera.Dial(hedera.Config{
		Network:     cfg.Hedera.Network,
		OperatorID:  cfg.Hedera.OperatorAccountID,
		OperatorKey: cfg.Hedera.OperatorKey(),
	})
	if err != nil {
		return nil, err
	}

	m := metrics.New("")
	mirrorClient := mirror.NewClient(mirror.Config{
		Timeout:  cfg.Mirror.Timeout.Duration,
		Observer: m.ObserveMirror,
	})

	resources := []plugin.Option{
		plugin.WithResource(ssplugin.ResourceConnection, adapter),
		plugin.WithResource(ssplugin.ResourceHandler, adapter),
		plugin.WithResource(ssplugin.ResourceMirror, mirrorClient),
		plugin.WithResource(ssplugin.ResourceNetworks, table),
	}
	if bps := cfg.Swap.SlippageBps; bps != nil {
		minimum, err := saucerswap.NewQuotedMinimum(table, *bps, saucerswap.WithQuoteTimeout(cfg.Swap.QuoteTimeout.Duration))
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		resources = append(resources, plugin.WithResource(ssplugin.ResourceMinimum, saucerswap.MinimumOutput(minimum)))
	}

	managerCfg, err := plugin.LoadManagerConfig(cfg.PluginsFile)
	if err != nil {
		_ = adapter.Close()
		return nil, err
	}
	applyPluginDefaults(&managerCfg, cfg)

	opts := append(resources,
		plugin.WithLogger(logger.Named("plugin")),
		plugin.WithAuditLogger(logger.Audit()),
		plugin.WithInvocationObserver(m.ObserveTool),
	)
	manager, err := plugin.NewManager(managerCfg, opts...)
	if err != nil {
		_ = adapter.Close()
		return nil, err
	}
	if err := manager.RegisterBuiltin(ssplugin.New()); err != nil {
		_ = adapter.Close()
		return nil, err
	}
	if err := manager.StartAll(ctx); err != nil {
		_ = adapter.Close()
		return nil, err
	}

	operator, _ := adapter.OperatorAccountID()
	logger.Named("swapd").Info("运行时就绪",
		slog.String("network", cfg.Hedera.Network),
		slog.String("operator", operator),
		slog.Int("tools", len(manager.Tools())),
	)
	return &runtime{cfg: cfg, ledger: adapter, manager: manager, metrics: m}, nil
}

func (r *runtime) Close(ctx context.Context) error {
	return errors.Join(r.manager.StopAll(ctx), r.ledger.Close())
}

// applyPluginDefaults 为内置插件补齐守护进程级别的默认值。
func applyPluginDefaults(mc *plugin.ManagerConfig, cfg *config.Config) {
	if mc.Plugins == nil {
		mc.Plugins = map[string]plugin.PluginConfig{}
	}
	if mc.Defaults.IsZero() {
		mc.Defaults = plugin.IsolationPolicy{
			AllowedCapabilities: []plugin.Capability{plugin.CapabilityNetwork, plugin.CapabilitySigning},
		}
	}
	entry := mc.Plugins[ssplugin.ID]
	if entry.Config == nil {
		entry.Config = map[string]any{}
	}
	if _, ok := entry.Config["default_mode"]; !ok {
		entry.Config["default_mode"] = cfg.Hedera.DefaultMode
	}
	mc.Plugins[ssplugin.ID] = entry
}

// newJobs 按配置创建任务存储与队列。
func newJobs(ctx context.Context, cfg config.JobsConfig) (task.Store, task.Queue, error) {
	var store task.Store
	switch cfg.Store.Driver {
	case "", "memory":
		store = task.NewMemoryStore()
	case "mysql":
		s, err := task.NewMySQLStore(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Store.Driver)
	}

	var queue task.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = task.NewMemoryQueue(cfg.Queue.Size)
	case "redis":
		q, err := task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:  cfg.Queue.Address,
			Password: cfg.Queue.Password,
			DB:       cfg.Queue.DB,
			Queue:    cfg.Queue.Name,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		queue = q
	case "rabbitmq":
		q, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.Queue.URL,
			Queue:    cfg.Queue.Name,
			Prefetch: cfg.Workers,
			Durable:  true,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		queue = q
	default:
		_ = store.Close()
		return nil, nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
	return store, queue, nil
}
