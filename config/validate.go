package config

import (
	"fmt"
	"net/url"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Server.Addr == "" {
		return ErrInvalid("server.addr is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return ErrInvalid("gateway.baseURL is required")
	}
	u, err := url.Parse(cfg.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalid(fmt.Sprintf("gateway.baseURL %q is not an absolute URL", cfg.Gateway.BaseURL))
	}
	if cfg.Gateway.TimeoutMs < 0 {
		return ErrInvalid("gateway.timeoutMs must be >= 0")
	}
	if cfg.Gateway.Rate < 0 || cfg.Gateway.Burst < 0 {
		return ErrInvalid("gateway.rate/burst must be >= 0")
	}
	if cfg.Gateway.Strategy == "" {
		return ErrInvalid("gateway.strategy is required")
	}
	if cfg.Gateway.Exchange == "" {
		return ErrInvalid("gateway.exchange is required")
	}
	if cfg.Ledger.Path == "" {
		return ErrInvalid("ledger.path is required")
	}
	if _, err := cfg.Ledger.Location(); err != nil {
		return ErrInvalid(fmt.Sprintf("ledger.timezone %q: %v", cfg.Ledger.Timezone, err))
	}
	if cfg.Ledger.MaxPendingAgeSec < 0 {
		return ErrInvalid("ledger.maxPendingAgeSec must be >= 0")
	}
	if cfg.Ledger.ReconcileIntervalMs < 0 {
		return ErrInvalid("ledger.reconcileIntervalMs must be >= 0")
	}
	if cfg.Ledger.ReconcileIntervalMs > 0 && cfg.Ledger.ReconcileIntervalMs < 500 {
		return ErrInvalid("ledger.reconcileIntervalMs must be >= 500 when enabled")
	}
	if cfg.Settings.Path == "" {
		return ErrInvalid("settings.path is required")
	}
	if cfg.Alert.WebhookURL != "" {
		u, err := url.Parse(cfg.Alert.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ErrInvalid(fmt.Sprintf("alert.webhookURL %q is not an absolute URL", cfg.Alert.WebhookURL))
		}
	}
	if cfg.Alert.ThrottleSec < 0 {
		return ErrInvalid("alert.throttleSec must be >= 0")
	}
	return nil
}
