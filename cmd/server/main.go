package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"toolshed-backend/internal/api/grpc/interceptor"
	httpapi "toolshed-backend/internal/api/http"
	"toolshed-backend/internal/app"
	"toolshed-backend/internal/config"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
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
	logger.Info("Starting Toolshed backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http", cfg.GetServerAddress(), "grpc", cfg.GetGRPCAddress())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// HTTP API, plus the upload endpoints when evidence is stored locally
	var local *httpapi.StorageHandler
	if ls, ok := a.Storage.(storage.LocalStore); ok {
		logger.Info("Serving mock storage endpoints", "upload_dir", cfg.Storage.UploadDir)
		local = httpapi.NewStorageHandler(ls, cfg.Storage.AllowedTypes, cfg.Storage.MaxFileSize*1024*1024)
	}
	handler := httpapi.NewHandler(a.Bookings, a.Disputes, a.Evidence, a.Ledger)
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           httpapi.NewRouter(handler, local),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info("Metrics listening", "address", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler()); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	// gRPC carries the health service for the orchestrator
	var grpcServer *grpc.Server
	if addr := cfg.GetGRPCAddress(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", addr)
			log.Fatalf("Failed to listen: %v", err)
		}
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(interceptor.NewErrorInterceptor().Unary()),
		)
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		// Register reflection service for grpcurl
		reflection.Register(grpcServer)

		go func() {
			logger.Info("gRPC server listening", "address", addr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("Failed to serve gRPC", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info("Server stopped")
}
