package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/senseease/senseease/server/internal/scheduler"
)

var (
	migrateDBPath string
	migratePrune  bool
)

func init() {
	migrateCmd.Flags().StringVar(&migrateDBPath, "db", "", "SQLite database path (defaults to storage.path from the config)")
	migrateCmd.Flags().BoolVar(&migratePrune, "prune", false, "also delete events older than storage.retention")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the SQLite schema",
	Long: `Create the carts, interaction_events and preferences tables if they do not
exist. The command is idempotent.

Examples:
  # Migrate the database named in the config
  senseease-server migrate --config config.yaml

  # Migrate a specific file and prune old events
  senseease-server migrate --db /var/lib/senseease/state.db --prune`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	path := migrateDBPath
	if path == "" {
		path = cfg.Server.Storage.Path
	}
	if path == "" {
		return fmt.Errorf("no database path: set storage.path or pass --db")
	}

	ctx := cmd.Context()
	start := time.Now()
	db, err := openDatabase(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "migrated %s in %s\n", path, time.Since(start).Round(time.Millisecond))

	if !migratePrune {
		return nil
	}
	sched := scheduler.New(db, cfg.Server.Storage.Retention, nil, nil, nil)
	n, err := sched.PruneNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d events older than %s\n", n, cfg.Server.Storage.Retention)
	return nil
}
