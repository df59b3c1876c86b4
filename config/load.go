package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"option-desk-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Settings SettingsConfig `yaml:"settings"`
	Alert    AlertConfig    `yaml:"alert"`
	Log      logger.Config  `yaml:"log"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"` // 留空则只在主端口暴露 /metrics
}

// GatewayConfig 描述 OpenAlgo 兼容的券商 REST 接口。
type GatewayConfig struct {
	BaseURL   string  `yaml:"baseURL"`
	APIKey    string  `yaml:"apiKey"`
	TimeoutMs int     `yaml:"timeoutMs"`
	Rate      float64 `yaml:"rate"`     // 每秒令牌数
	Burst     int     `yaml:"burst"`    // 最大突发
	Strategy  string  `yaml:"strategy"` // 下单/撤单携带的固定策略标签
	Exchange  string  `yaml:"exchange"`
}

type LedgerConfig struct {
	Path                string `yaml:"path"`
	ArchivePath         string `yaml:"archivePath"` // 日切时丢弃的记录写入 sqlite，留空关闭
	Timezone            string `yaml:"timezone"`    // 交易日按该时区计算，留空为本地时区
	MaxPendingAgeSec    int    `yaml:"maxPendingAgeSec"`
	ReconcileIntervalMs int    `yaml:"reconcileIntervalMs"` // 0 表示只由前端轮询触发
}

type SettingsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// AlertConfig 告警：总是写日志，配置 webhook 时额外推送。
type AlertConfig struct {
	WebhookURL  string `yaml:"webhookURL"`
	ThrottleSec int    `yaml:"throttleSec"` // 相同告警的最小间隔
}

func (a AlertConfig) Throttle() time.Duration {
	if a.ThrottleSec <= 0 {
		return time.Minute
	}
	return time.Duration(a.ThrottleSec) * time.Second
}

// Timeout returns the broker call timeout, defaulting to 10s.
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// Location resolves the trading-day time zone.
func (l LedgerConfig) Location() (*time.Location, error) {
	if l.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(l.Timezone)
}

func (l LedgerConfig) MaxPendingAge() time.Duration {
	return time.Duration(l.MaxPendingAgeSec) * time.Second
}

func (l LedgerConfig) ReconcileInterval() time.Duration {
	return time.Duration(l.ReconcileIntervalMs) * time.Millisecond
}

// Default returns a configuration matching the stock single-trader deployment.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Server: ServerConfig{
			Addr: ":5003",
		},
		Gateway: GatewayConfig{
			BaseURL:   "http://localhost:5000/api/v1",
			TimeoutMs: 10000,
			Rate:      10,
			Burst:     20,
			Strategy:  "trading_app",
			Exchange:  "NFO",
		},
		Ledger: LedgerConfig{
			Path: "data/orders.json",
		},
		Settings: SettingsConfig{
			Path:  "data/settings.json",
			Watch: true,
		},
		Alert: AlertConfig{
			ThrottleSec: 60,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads YAML config from path on top of Default and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config (defaults when path is empty), reads the
// optional .env files, then overrides fields from env vars if present.
func LoadWithEnvOverrides(path string, envFiles ...string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(envFiles...); err != nil {
		return cfg, err
	}
	if v := os.Getenv("OPENALGO_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("OPENALGO_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = net.JoinHostPort("", v)
	}
	if v := os.Getenv("DESK_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("DESK_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}
	if v := os.Getenv("DESK_ALERT_WEBHOOK"); v != "" {
		cfg.Alert.WebhookURL = v
	}
	if v := os.Getenv("DESK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	cfg.Gateway.BaseURL = strings.TrimRight(cfg.Gateway.BaseURL, "/")
	return cfg, Validate(cfg)
}

// LoadDotEnv loads KEY=VALUE files without overriding variables already set.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// SaveToFile writes cfg as YAML.
func SaveToFile(cfg AppConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
