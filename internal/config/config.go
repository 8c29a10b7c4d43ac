package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hedera-swap-plugin/internal/ledger"
	"hedera-swap-plugin/internal/networks"
	"hedera-swap-plugin/pkg/logger"
)

// EnvPath 指定配置文件路径的环境变量。
const EnvPath = "SWAPD_CONFIG"

// DefaultPath 是未设置 EnvPath 时使用的配置文件。
const DefaultPath = "configs/swapd.json"

// Config 描述了 swapd 在启动阶段需要加载的核心配置。
type Config struct {
	Server       ServerConfig  `json:"server"`
	Hedera       HederaConfig  `json:"hedera"`
	Mirror       MirrorConfig  `json:"mirror"`
	Swap         SwapConfig    `json:"swap"`
	NetworksFile string        `json:"networks_file"`
	PluginsFile  string        `json:"plugins_file"`
	Jobs         JobsConfig    `json:"jobs"`
	Alerts       AlertsConfig  `json:"alerts"`
	Log          logger.Config `json:"log"`
}

// ServerConfig 控制 API 服务的监听地址与限流参数。
type ServerConfig struct {
	Address        string   `json:"address"`
	AllowedOrigins []string `json:"allowed_origins"`
	RatePerMinute  int      `json:"rate_per_minute"`
	MaxConcurrent  int      `json:"max_concurrent"`
	RequestTimeout Duration `json:"request_timeout"`
}

// HederaConfig 描述账本连接。私钥只能通过环境变量注入。
type HederaConfig struct {
	Network           string `json:"network"`
	OperatorAccountID string `json:"operator_account_id"`
	OperatorKeyEnv    string `json:"operator_key_env"`
	DefaultMode       string `json:"default_mode"`
}

// OperatorKey 读取 OperatorKeyEnv 指向的环境变量。
func (h HederaConfig) OperatorKey() string {
	if h.OperatorKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(h.OperatorKeyEnv))
}

// MirrorConfig 控制 Mirror Node 查询。
type MirrorConfig struct {
	Timeout Duration `json:"timeout"`
}

// SwapConfig 控制最小输出量策略。SlippageBps 为空时使用零最小值。
type SwapConfig struct {
	SlippageBps  *int     `json:"slippage_bps"`
	QuoteTimeout Duration `json:"quote_timeout"`
}

// JobsConfig 描述异步任务所用的队列与存储。
type JobsConfig struct {
	Queue   QueueConfig `json:"queue"`
	Store   StoreConfig `json:"store"`
	Workers int         `json:"workers"`
}

// QueueConfig 选择任务队列实现。
type QueueConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int    `json:"size"`
}

// AlertsConfig 控制任务失败告警。日志渠道始终开启，SlackWebhookURL 非空时追加 Slack。
type AlertsConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url"`
	SlackChannel    string `json:"slack_channel"`
}

// StoreConfig 选择任务存储实现。
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// Duration 以 "5s" 形式的字符串或纳秒整数反序列化。
type Duration struct {
	time.Duration
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("无效的时长 %q: %w", v, err)
		}
		d.Duration = parsed
	case nil:
		d.Duration = 0
	default:
		return fmt.Errorf("无效的时长 %s", string(data))
	}
	return nil
}

// MarshalJSON 实现 json.Marshaler。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Path 返回应当加载的配置文件路径。
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置的取值范围。
func (c *Config) Validate() error {
	if _, ok := networks.Parse(c.Hedera.Network); !ok {
		return fmt.Errorf("不支持的网络 %q", c.Hedera.Network)
	}
	if _, ok := ledger.ParseMode(c.Hedera.DefaultMode); !ok {
		return fmt.Errorf("不支持的默认模式 %q", c.Hedera.DefaultMode)
	}
	if bps := c.Swap.SlippageBps; bps != nil && (*bps < 0 || *bps >= 10000) {
		return fmt.Errorf("slippage_bps 必须位于 [0, 10000)，当前为 %d", *bps)
	}
	switch c.Jobs.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("不支持的队列驱动 %q", c.Jobs.Queue.Driver)
	}
	switch c.Jobs.Store.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Jobs.Store.DSN) == "" {
			return errors.New("mysql 存储需要 dsn")
		}
	default:
		return fmt.Errorf("不支持的存储驱动 %q", c.Jobs.Store.Driver)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RatePerMinute <= 0 {
		c.Server.RatePerMinute = 120
	}
	if c.Server.MaxConcurrent <= 0 {
		c.Server.MaxConcurrent = 32
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		c.Server.RequestTimeout.Duration = 60 * time.Second
	}

	if c.Hedera.Network == "" {
		c.Hedera.Network = string(networks.Testnet)
	}
	if c.Hedera.OperatorKeyEnv == "" {
		c.Hedera.OperatorKeyEnv = "HEDERA_OPERATOR_KEY"
	}
	if c.Hedera.DefaultMode == "" {
		c.Hedera.DefaultMode = string(ledger.ModeAutonomous)
	}

	if c.Mirror.Timeout.Duration <= 0 {
		c.Mirror.Timeout.Duration = 10 * time.Second
	}
	if c.Swap.QuoteTimeout.Duration <= 0 {
		c.Swap.QuoteTimeout.Duration = 10 * time.Second
	}

	c.NetworksFile = resolve(baseDir, c.NetworksFile)
	c.PluginsFile = resolve(baseDir, c.PluginsFile)

	if c.Jobs.Queue.Driver == "" {
		c.Jobs.Queue.Driver = "memory"
	}
	if c.Jobs.Store.Driver == "" {
		c.Jobs.Store.Driver = "memory"
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Audit.Enabled {
		c.Log.Audit.Path = resolve(baseDir, c.Log.Audit.Path)
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
