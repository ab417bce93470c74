// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"os"

	"github.com/uran-qa/uran/internal/paths"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "uran",
	Short: "Manual-testing workflow tracker",
}

func Execute() {
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		paths.SetDataDirOverride(dataDir)
	}

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
