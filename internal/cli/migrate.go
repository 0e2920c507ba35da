package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/launchpad/internal/domain/publish/adapters"
	"github.com/relicta-tech/launchpad/internal/infrastructure/persistence/postgres"
)

var migrateSeedFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Long: `Apply the PostgreSQL schema to storage.dsn and optionally load
projects, iterations, domains and third-party accounts from a seed file.

The schema is idempotent; running migrate twice is safe.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSeedFile, "seed", "", "seed file to load after migrating (default: storage.seed_file)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate requires storage.driver postgres, got %q", cfg.Storage.Driver)
	}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	printSuccess(cmd, "schema applied")

	seedFile := migrateSeedFile
	if seedFile == "" {
		seedFile = cfg.Storage.SeedFile
	}
	if seedFile == "" {
		return nil
	}

	seed, err := adapters.LoadSeedFile(seedFile)
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}
	if err := postgres.Seed(ctx, db, seed); err != nil {
		return fmt.Errorf("failed to seed postgres: %w", err)
	}
	printSuccess(cmd, "seed data loaded from "+seedFile)
	return nil
}
