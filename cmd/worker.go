package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/sacco-management/internal/core/events"
	"github.com/frahmantamala/sacco-management/internal/reconciliation"
	"github.com/frahmantamala/sacco-management/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run alongside the HTTP server`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the pending payment reconciliation worker",
	Long:  `Periodically settle push payments left pending although a successful confirmation was logged`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	reconcileOnce       bool
	reconcileSchedule   string
	reconcileStaleAfter time.Duration
	reconcileBatchSize  int
)

func startReconcileWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	reconcileConfig := config.Reconciliation
	reconcileConfig.Schedule = getStringFlag(reconcileSchedule, reconcileConfig.Schedule)
	reconcileConfig.BatchSize = getIntFlag(reconcileBatchSize, reconcileConfig.BatchSize)
	if reconcileStaleAfter > 0 {
		reconcileConfig.StaleAfter = reconcileStaleAfter
	}

	bus := events.NewEventBus(log)
	app := buildApplication(config, db, bus, log)
	sweeper := reconciliation.NewSweeper(reconcileConfig, app.transactions, app.callbacks, app.paymentService, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reconcileOnce {
		summary, err := sweeper.Sweep(ctx)
		if err != nil {
			log.Error("reconciliation sweep failed", "error", err)
		} else {
			log.Info("reconciliation sweep complete",
				"scanned", summary.Scanned,
				"settled", summary.Settled,
				"awaiting", summary.Awaiting,
				"failed", summary.Failed)
		}
		drainBus(bus)
		return
	}

	log.Info("starting reconciliation worker",
		"schedule", reconcileConfig.Schedule,
		"stale_after", reconcileConfig.StaleAfter,
		"batch_size", reconcileConfig.BatchSize,
		"auto_settle", reconcileConfig.AutoSettle)

	if err := sweeper.Run(ctx); err != nil {
		log.Error("reconciliation worker stopped", "error", err)
		os.Exit(1)
	}

	log.Info("received signal, shutting down reconciliation worker")
	drainBus(bus)
	log.Info("reconciliation worker shutdown complete")
}

func drainBus(bus *events.EventBus) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bus.Drain(ctx); err != nil {
		logger.LoggerWrapper().Warn("shutdown timeout reached, forcing exit", "error", err)
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().BoolVar(&reconcileOnce, "once", false, "Run a single sweep and exit")
	reconcileWorkerCmd.Flags().StringVar(&reconcileSchedule, "schedule", "", "Cron schedule (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&reconcileStaleAfter, "stale-after", 0, "Minimum pending age before a sweep looks at a payment (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 0, "Pending payments examined per sweep (overrides config)")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
