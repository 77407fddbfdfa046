package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/internal/marketdata"
	"github.com/meridianpe/meridian/backend/internal/narrative"
	"github.com/meridianpe/meridian/backend/internal/portfolio"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/database"
	"github.com/meridianpe/meridian/backend/pkg/logger"
	"github.com/meridianpe/meridian/backend/pkg/redis"
)

// calcCmd represents the calc command
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute portfolio metrics from the command line",
	Long: `Runs one metrics computation and prints the result as JSON.

Example:
  go run ./cmd/meridian calc --tickers AAPL,MSFT --weights 0.6,0.4
  go run ./cmd/meridian calc --tickers AAPL,MSFT --weights 0.6,0.4 \
    --start 2025-01-01 --end 2025-12-31 --traces
  go run ./cmd/meridian calc --tickers AAPL --weights 1.0 --no-cache`,
	RunE: runCalc,
}

var (
	calcTickers   string
	calcWeights   string
	calcStart     string
	calcEnd       string
	calcBenchmark string
	calcTraces    bool
	calcNarrative bool
	calcNoCache   bool
)

func init() {
	rootCmd.AddCommand(calcCmd)

	calcCmd.Flags().StringVar(&calcTickers, "tickers", "", "comma-separated ticker list (required)")
	calcCmd.Flags().StringVar(&calcWeights, "weights", "", "comma-separated weight list (required)")
	calcCmd.Flags().StringVar(&calcStart, "start", "", "start date YYYY-MM-DD (default: one year ago)")
	calcCmd.Flags().StringVar(&calcEnd, "end", "", "end date YYYY-MM-DD (default: today)")
	calcCmd.Flags().StringVar(&calcBenchmark, "benchmark", "", "benchmark ticker (default: from config)")
	calcCmd.Flags().BoolVar(&calcTraces, "traces", false, "include calculation traces")
	calcCmd.Flags().BoolVar(&calcNarrative, "narrative", false, "include AI analysis")
	calcCmd.Flags().BoolVar(&calcNoCache, "no-cache", false, "skip the metrics cache")

	calcCmd.MarkFlagRequired("tickers")
	calcCmd.MarkFlagRequired("weights")
}

func runCalc(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tickers := strings.Split(calcTickers, ",")
	for i := range tickers {
		tickers[i] = strings.TrimSpace(tickers[i])
	}

	weights, err := parseWeights(calcWeights)
	if err != nil {
		return err
	}

	// Cache is optional for one-off runs.
	var store portfolio.CacheStore
	if !calcNoCache {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		rdb, err := redis.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()

		cacheRepo := cache.NewRepository(db.Pool)
		if err := cacheRepo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure cache schema: %w", err)
		}
		store = cache.NewStore(cacheRepo, redis.NewCache(rdb, "meridian"), log)
	}

	mdClient := marketdata.NewClient(cfg, log)
	fetcher := marketdata.NewFetcher(mdClient, cfg.MarketData.Workers, log)

	narrator, err := narrative.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create narrative client: %w", err)
	}

	service := portfolio.NewService(cfg, fetcher, mdClient, store, narrator, log)

	result, err := service.Calculate(ctx, &portfolio.CalculationRequest{
		Tickers:           tickers,
		Weights:           weights,
		StartDate:         calcStart,
		EndDate:           calcEnd,
		BenchmarkTicker:   calcBenchmark,
		GenerateTraces:    calcTraces,
		IncludeAIAnalysis: calcNarrative,
	})
	if err != nil {
		return fmt.Errorf("calculate: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseWeights(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	weights := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		weights = append(weights, f)
	}
	return weights, nil
}
