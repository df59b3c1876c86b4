package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version 构建时可用 -ldflags 覆盖
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "desk version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
