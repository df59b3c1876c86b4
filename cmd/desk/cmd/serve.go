package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"option-desk-go/internal/container"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the desk HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Env != "dev" {
			gin.SetMode(gin.ReleaseMode)
		}

		c := container.NewWithConfig(cfg)
		if err := c.Build(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return c.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
