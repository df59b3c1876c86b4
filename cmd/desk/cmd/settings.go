package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or adjust instrument settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print current settings with derived symbols",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildOffline()
		if err != nil {
			return err
		}
		defer c.Stop()
		cur := c.Settings().Load()
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"settings": cur,
			"cards":    cur.Cards(),
		})
	},
}

var settingsStrikeCmd = &cobra.Command{
	Use:   "strike <nifty|banknifty> <ce|pe> <delta>",
	Short: "Shift a strike by delta points",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		c, err := buildOffline()
		if err != nil {
			return err
		}
		defer c.Stop()
		upd, err := c.Settings().UpdateStrike(args[0], args[1], delta)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), upd)
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsStrikeCmd)
}
