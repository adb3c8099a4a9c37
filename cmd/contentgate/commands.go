package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/bootstrap"
	"github.com/walrusgate/contentgate/common/config"
	"github.com/walrusgate/contentgate/common/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serviceName)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Database.Type != "postgres" {
			return fmt.Errorf("migrate requires DATABASE_TYPE=postgres, got %q", cfg.Database.Type)
		}

		if status, _ := cmd.Flags().GetBool("status"); status {
			if err := migrations.CheckStatus(cfg.DatabaseURL()); err != nil {
				return err
			}
			fmt.Println("Database schema is up to date")
			return nil
		}

		if err := migrations.MigrateUp(cfg.DatabaseURL()); err != nil {
			return err
		}

		version, err := migrations.LatestVersion()
		if err != nil {
			return err
		}
		fmt.Printf("Database migrated to version %d\n", version)
		return nil
	},
}

var backfillSlugsCmd = &cobra.Command{
	Use:   "backfill-slugs",
	Short: "Assign share slugs to uploads registered without one",
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		components, err := bootstrap.Setup(cmd.Context(), serviceName,
			bootstrap.WithoutRedis(),
			bootstrap.WithoutQueue(),
			bootstrap.WithoutCache(),
			bootstrap.WithoutTelemetry(),
		)
		if err != nil {
			return fmt.Errorf("failed to bootstrap: %w", err)
		}
		defer components.Shutdown(cmd.Context())

		if components.DB == nil {
			return fmt.Errorf("backfill-slugs requires DATABASE_TYPE=postgres")
		}

		uploads := repository.NewUploadRepository(components.DB)
		purchases := repository.NewPurchaseRepository(components.DB)
		svc := service.NewUploadService(uploads, purchases, service.NewAccessGate(purchases), components.Logger)

		n, err := svc.BackfillSlugs(cmd.Context(), batchSize)
		if err != nil {
			return fmt.Errorf("backfill stopped after %d uploads: %w", n, err)
		}

		fmt.Printf("Assigned slugs to %d uploads\n", n)
		return nil
	},
}
