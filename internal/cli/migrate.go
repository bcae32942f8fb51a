package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/loglite/internal/config"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert schema migrations",
	}

	rolloutCmd := &cobra.Command{
		Use:   "rollout",
		Short: "Apply every pending migration in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationStore(cmd.Context(), configPath, func(ctx context.Context, st *store.Store, cfg *config.Config) error {
				for _, m := range cfg.Migrations {
					if err := st.ApplyMigration(ctx, store.Migration{Version: m.Version, Rollout: m.Rollout, Rollback: m.Rollback}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert every applied migration in reverse order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationStore(cmd.Context(), configPath, func(ctx context.Context, st *store.Store, cfg *config.Config) error {
				for i := len(cfg.Migrations) - 1; i >= 0; i-- {
					m := cfg.Migrations[i]
					if err := st.RollbackMigration(ctx, store.Migration{Version: m.Version, Rollout: m.Rollout, Rollback: m.Rollback}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	migrateCmd.PersistentFlags().StringVar(&configPath, "config", "loglite.yaml", "path to the configuration file")
	migrateCmd.AddCommand(rolloutCmd, rollbackCmd)
	return migrateCmd
}

func withMigrationStore(ctx context.Context, configPath string, fn func(context.Context, *store.Store, *config.Config) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Options{
		Path:              cfg.DBPath,
		TableName:         cfg.LogTableName,
		Pragmas:           cfg.SqliteParams,
		DictionaryColumns: cfg.DictionaryColumns,
		TimestampField:    cfg.LogTimestampField,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, st, cfg)
}
