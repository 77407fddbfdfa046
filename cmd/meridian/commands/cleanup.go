package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/database"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired metrics cache rows",
	Long: `Deletes cache rows past their expiry.

Lookups already ignore expired rows, so this only reclaims storage.
The scheduler runs the same cleanup daily; this command triggers it
manually.

Example:
  go run ./cmd/meridian cleanup`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Metrics Cache Cleanup ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := cache.NewRepository(db.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure cache schema: %w", err)
	}

	deleted, err := repo.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired rows: %w", err)
	}

	remaining, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count cache rows: %w", err)
	}

	fmt.Printf("Deleted %d expired rows, %d live rows remain\n", deleted, remaining)
	return nil
}
