// Package main is the senseease-server binary: the cart pricing and stress
// scoring API, its live stress stream and maintenance jobs.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/senseease/senseease/server/internal/alerts"
	"github.com/senseease/senseease/server/internal/config"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "senseease-server",
	Short: "Cart pricing and shopper stress scoring server",
	Long: `senseease-server prices shopping carts and scores shopper stress from
interaction events, switching sessions into calming mode when rules fire.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(quoteCmd)
}

// loadConfig reads the config file. A missing file yields the defaults so
// the server can start without one; found reports whether it existed.
func loadConfig() (cfg *config.Config, found bool, err error) {
	cfg, err = config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Parse(nil)
		if err != nil {
			return nil, false, err
		}
		return cfg, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := alerts.CheckRules(cfg.Server.Alerts.Rules); err != nil {
		return nil, true, fmt.Errorf("server config: %w", err)
	}
	return cfg, true, nil
}

// setupLogging installs the JSON logger. The returned LevelVar lets a
// config reload change the level in place.
func setupLogging(cfg *config.Config) *slog.LevelVar {
	level := new(slog.LevelVar)
	level.Set(cfg.Server.Log.SlogLevel())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return level
}
