package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/api"
	"github.com/cvrisk-engine/internal/config"
	"github.com/cvrisk-engine/internal/domain"
	"github.com/cvrisk-engine/internal/notify"
	"github.com/cvrisk-engine/internal/repository"
	"github.com/cvrisk-engine/internal/service"
	"github.com/cvrisk-engine/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting cardiovascular risk engine")

	// External risk-score services, each behind its own circuit breaker.
	framingham := external.NewResilientAlgorithm(logger,
		external.NewFraminghamClient(*configManager.GetAlgorithmConfig(domain.AlgorithmFramingham)))
	qrisk3 := external.NewResilientAlgorithm(logger,
		external.NewQRISK3Client(*configManager.GetAlgorithmConfig(domain.AlgorithmQRISK3)))

	// Evaluation cache is optional: a missing Redis degrades to uncached.
	var cache domain.EvaluationCache
	if cfg.Cache.Enabled {
		redisCache, err := external.NewRedisEvaluationCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Evaluation cache unavailable, continuing uncached")
		} else {
			cache = redisCache
			defer redisCache.Close()
		}
	}

	store, err := repository.NewSQLiteEvaluationStore(cfg.Store.Path)
	if err != nil {
		logger.Fatalf("Failed to open evaluation store: %v", err)
	}
	defer store.Close()

	var notifier domain.Notifier
	var eventHandler http.Handler
	if cfg.Notify.Enabled {
		hub := notify.NewHub(logger, cfg.Notify.BufferSize)
		defer hub.Close()
		notifier = hub
		eventHandler = hub
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	evaluator := service.NewEvaluator(logger, external.NewBuiltinMedicationDB(),
		cache, notifier, store, cfg.Cache.DefaultTTL)
	orchestrator := service.NewOrchestrator(logger, evaluator, framingham, qrisk3)

	server := api.NewServer(configManager, logger, orchestrator, evaluator, store, eventHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}
