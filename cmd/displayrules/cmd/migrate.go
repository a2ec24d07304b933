package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/displayrules/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply diagnostics database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "list migrations without applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if err := requireDB(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := db.Open(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if status, _ := cmd.Flags().GetBool("status"); !status {
		if err := db.MigrateUp(ctx, database, logger); err != nil {
			return err
		}
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied " + s.AppliedAt
		}
		fmt.Fprintf(out, "%s\t%s\n", s.ID, state)
	}
	return nil
}

// openStore loads the diagnostics queries after checking the schema is
// current.
func openStore(ctx context.Context, database *sqlx.DB) (*db.DiagnosticStore, error) {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return nil, fmt.Errorf("migration %s not applied - run 'displayrules migrate' first", s.ID)
		}
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return db.NewDiagnosticStore(queries), nil
}
