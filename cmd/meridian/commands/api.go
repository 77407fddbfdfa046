package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianpe/meridian/backend/internal/api"
	"github.com/meridianpe/meridian/backend/internal/api/handlers"
	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/internal/marketdata"
	"github.com/meridianpe/meridian/backend/internal/narrative"
	"github.com/meridianpe/meridian/backend/internal/portfolio"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/database"
	"github.com/meridianpe/meridian/backend/pkg/logger"
	"github.com/meridianpe/meridian/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                  - Health check
  POST /api/portfolio/metrics   - Compute portfolio metrics
  GET  /api/portfolio/hash      - Portfolio hash preview

Example:
  go run ./cmd/meridian api
  go run ./cmd/meridian api --port 8090`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Meridian API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Connect to redis (optional fast cache)
	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	// 5. Metrics cache
	cacheRepo := cache.NewRepository(db.Pool)
	if err := cacheRepo.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure cache schema: %w", err)
	}
	store := cache.NewStore(cacheRepo, redis.NewCache(rdb, "meridian"), log)

	// 6. Market data provider
	mdClient := marketdata.NewClient(cfg, log)
	fetcher := marketdata.NewFetcher(mdClient, cfg.MarketData.Workers, log)

	// 7. Narrative collaborator
	narrator, err := narrative.New(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("create narrative client: %w", err)
	}

	// 8. Orchestration service and handlers
	service := portfolio.NewService(cfg, fetcher, mdClient, store, narrator, log)
	portfolioHandler := handlers.NewPortfolioHandler(service, log)
	healthHandler := handlers.NewHealthHandler(cfg, db, rdb, log)

	// 9. Router and server
	router := api.NewRouter(portfolioHandler, healthHandler, log)
	server := api.New(cfg, log, router)

	// 10. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\nServer running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/portfolio/metrics")
	fmt.Println("  GET  /api/portfolio/hash")
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
