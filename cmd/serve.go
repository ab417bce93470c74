// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/uran-qa/uran/internal/configloader"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/server"
)

// NewServeCmd creates the serve command that bootstraps the HTTP API.
func NewServeCmd() *cobra.Command {
	var (
		bindAddr       string
		logMode        string
		devMode        bool
		devUserID      string
		metricsEnabled bool
		dataDir        string
		configPath     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the uran tracker API",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnvOverrides(cmd.Flags())

			fileCfg, err := configloader.LoadServerConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg := server.Config{
				Bind:              bindAddr,
				Dev:               devMode,
				DevUserID:         devUserID,
				Log:               logMode,
				StdOut:            os.Stdout,
				StdErr:            os.Stderr,
				MetricsEnabled:    metricsEnabled,
				MetricsConfigured: cmd.Flags().Changed("metrics"),
				DataDir:           dataDir,
			}

			// Flags win over the config file; the file wins over defaults.
			if !cmd.Flags().Changed("bind") && fileCfg.Bind != "" {
				cfg.Bind = fileCfg.Bind
			}
			if !cmd.Flags().Changed("log") && fileCfg.Log != "" {
				cfg.Log = fileCfg.Log
			}
			if !cmd.Flags().Changed("dev") && fileCfg.Dev {
				cfg.Dev = true
			}
			if !cmd.Flags().Changed("dev-user") && fileCfg.DevUserID != "" {
				cfg.DevUserID = fileCfg.DevUserID
			}
			if !cmd.Flags().Changed("data-dir") && fileCfg.DataDir != "" {
				cfg.DataDir = fileCfg.DataDir
			}
			if !cmd.Flags().Changed("metrics") && fileCfg.Metrics != nil {
				cfg.MetricsEnabled = *fileCfg.Metrics
				cfg.MetricsConfigured = true
			}
			if fileCfg.ShutdownSeconds > 0 {
				cfg.ShutdownTimeout = time.Duration(fileCfg.ShutdownSeconds) * time.Second
			}
			cfg.CoreDBOptions = coredb.Options{
				DataDir:  cfg.DataDir,
				MaxBytes: fileCfg.Storage.MaxBytes,
			}

			if cfg.DevUserID == "" {
				cfg.DevUserID = os.Getenv("URAN_DEV_USER")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Run(ctx, cfg); err != nil {
				if ctx.Err() != nil {
					// Shutdown initiated; surface as exit 0 after graceful stop.
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bindAddr, "bind", "127.0.0.1:8080", "Address for HTTP server to listen on")
	cmd.Flags().BoolVar(&devMode, "dev", false, "Enable development defaults (relaxed auth, CORS)")
	cmd.Flags().StringVar(&devUserID, "dev-user", "", "Principal used when dev mode receives no token (overrides URAN_DEV_USER)")
	cmd.Flags().StringVar(&logMode, "log", "text", "Log output format (text|json)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics", true, "Expose Prometheus /metrics endpoint")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the tracker database (overrides DATA_DIR)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")

	return cmd
}

// applyEnvOverrides fills unset flags from environment variables. Explicit
// flags always win; env-sourced values count as set so the config file does
// not override them.
func applyEnvOverrides(fs *pflag.FlagSet) {
	mapping := map[string]string{
		"bind":     "URAN_BIND",
		"log":      "URAN_LOG",
		"data-dir": "URAN_DATA_DIR",
		"config":   "URAN_CONFIG",
	}
	for name, env := range mapping {
		if fs.Changed(name) {
			continue
		}
		if val := os.Getenv(env); val != "" {
			_ = fs.Set(name, val)
		}
	}
}
