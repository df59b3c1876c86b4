package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"option-desk-go/config"
	"option-desk-go/internal/container"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "desk",
	Short: "Options order desk backed by an OpenAlgo broker",
	Long: `desk serves the order-entry API for NIFTY / BANKNIFTY option cards.

It translates target positions into smart orders, keeps a day-scoped
ledger of resting LIMIT/SL orders and reconciles it against the broker
order book.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files to load before env overrides")
}

func loadConfig() (config.AppConfig, error) {
	return config.LoadWithEnvOverrides(cfgFile, envFiles...)
}

// buildOffline 构建容器但不启动任何服务，供一次性子命令使用
func buildOffline() (*container.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Log.Level = "warn"
	cfg.Settings.Watch = false
	cfg.Ledger.ReconcileIntervalMs = 0
	c := container.NewWithConfig(cfg)
	if err := c.Build(); err != nil {
		return nil, err
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
