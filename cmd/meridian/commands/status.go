package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/database"
	"github.com/meridianpe/meridian/backend/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend status",
	Long: `Checks the database, redis and provider configuration, and reports
live metrics cache statistics.

Example:
  go run ./cmd/meridian status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Meridian Status ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Printf("Environment:    %s\n", cfg.Env)
	fmt.Printf("Benchmark:      %s\n", cfg.Engine.BenchmarkTicker)
	fmt.Printf("Cache TTL:      %s\n", cfg.Engine.CacheTTL)
	fmt.Printf("Provider key:   %s\n", configuredLabel(cfg.MarketData.APIKey != ""))
	fmt.Printf("Narrative:      %s\n", enabledLabel(cfg.Narrative.Enabled))

	// Database
	db, err := database.New(cfg)
	if err != nil {
		fmt.Printf("Database:       unreachable (%v)\n", err)
		return nil
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("Database:       unhealthy (%s)\n", health.Error)
	} else {
		fmt.Printf("Database:       healthy (%d/%d conns, ping %s)\n",
			health.TotalConns, health.MaxConns, health.ResponseTime)
	}

	// Redis
	rdb, err := redis.New(cfg)
	if err != nil {
		fmt.Printf("Redis:          unreachable (%v)\n", err)
	} else {
		defer rdb.Close()
		fmt.Printf("Redis:          %s\n", enabledLabel(rdb.Enabled()))
	}

	// Cache statistics
	repo := cache.NewRepository(db.Pool)
	count, err := repo.Count(ctx)
	if err != nil {
		fmt.Printf("Metrics cache:  unavailable (%v)\n", err)
		return nil
	}
	fmt.Printf("Metrics cache:  %d live rows\n", count)

	return nil
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func enabledLabel(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}
