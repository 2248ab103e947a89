package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"toolshed-backend/internal/app"
	"toolshed-backend/internal/config"
	"toolshed-backend/internal/jobs"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire_stale_bookings', 'all')")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Toolshed cronjob runner...", "log_level", cfg.Log.Level)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(&jobs.Services{
		Bookings: a.Bookings,
		Disputes: a.Disputes,
	}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(jobRunner, *runOnce); err != nil {
			a.Close()
			log.Fatalf("Job %s failed: %v", *runOnce, err)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info("Metrics listening", "address", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler()); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		a.Close()
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once, or every job for "all"
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) error {
	if jobName == "all" {
		return jobRunner.RunAll()
	}
	for _, name := range jobRunner.JobNames() {
		if name == jobName {
			_, err := jobRunner.Run(name)
			return err
		}
	}

	logger.Error("Unknown job name", "job", jobName)
	fmt.Printf("Available jobs:\n")
	for _, name := range jobRunner.JobNames() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("  - all\n")
	return fmt.Errorf("unknown job %q", jobName)
}
