package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/internal/scheduler"
	"github.com/meridianpe/meridian/backend/internal/scheduler/jobs"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/database"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the maintenance scheduler",
	Long: `Starts the cron scheduler for background maintenance jobs.

Jobs:
  cache_cleanup  - removes expired metrics cache rows (daily, 3 AM)

Example:
  go run ./cmd/meridian scheduler
  go run ./cmd/meridian scheduler --run-now`,
	RunE: runScheduler,
}

var (
	schedulerRunNow bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().BoolVar(&schedulerRunNow, "run-now", false, "run all jobs once at startup")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Meridian Scheduler ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := cache.NewRepository(db.Pool)

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewCacheCleanupJob(repo, log)); err != nil {
		return fmt.Errorf("add cleanup job: %w", err)
	}

	sched.Start()

	if schedulerRunNow {
		for _, name := range sched.Jobs() {
			if err := sched.RunJob(name); err != nil {
				log.WithError(err).WithField("job", name).Warn("Failed to trigger job")
			}
		}
	}

	fmt.Println("Scheduler running. Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}
