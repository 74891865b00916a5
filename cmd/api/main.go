package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/api/rest"
	"github.com/vaultmesh/backup-sentinel/internal/domain/threat"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/cache"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/config"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/telemetry"
	"github.com/vaultmesh/backup-sentinel/internal/service/admission"
	"github.com/vaultmesh/backup-sentinel/internal/service/auditlog"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	scanner := threat.NewScanner(logger)
	limiter := admission.NewLimiter(admission.NewStore(redisClient), cfg.Security.RateLimit, logger)

	recorder := auditlog.NewRecorder(cfg.Security.Audit, logger,
		auditlog.NewJSONSink(logger),
		auditlog.NewAlertSink(logger, 5*time.Minute),
	)
	recorder.Start()

	server := rest.NewServer(cfg, logger, redisClient, scanner, limiter, recorder)

	logger.Info("starting backup-sentinel",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
	)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}
