package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect and manage tracked orders",
	Long: `Operate on the day ledger without starting the HTTP server.

Examples:
  desk orders pending
  desk orders sync
  desk orders cancel 25021100000123
  desk orders history --limit 20`,
}

var ordersPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending tracked orders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildOffline()
		if err != nil {
			return err
		}
		defer c.Stop()
		return printJSON(cmd.OutOrStdout(), c.Ledger().Pending(cmd.Context()))
	},
}

var ordersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile pending orders against the broker order book",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildOffline()
		if err != nil {
			return err
		}
		defer c.Stop()
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		updated, err := c.Ledger().Reconcile(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"status":  "success",
			"updated": updated,
			"pending": c.Ledger().Pending(ctx),
		})
	},
}

var ordersCancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel an order at the broker and mark it cancelled locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildOffline()
		if err != nil {
			return err
		}
		defer c.Stop()
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		res := c.Ledger().Cancel(ctx, args[0])
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("cancel %s: %s", args[0], res.Message)
		}
		return nil
	},
}

var historyLimit int

var ordersHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List orders archived at day rollover",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildOffline()
		if err != nil {
			return err
		}
		defer c.Stop()
		if c.Archive() == nil {
			return errors.New("ledger.archivePath is not configured")
		}
		rows, err := c.Archive().List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rows)
	},
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersPendingCmd, ordersSyncCmd, ordersCancelCmd, ordersHistoryCmd)
	ordersHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "max rows, 0 for all")
}
