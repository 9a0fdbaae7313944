package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"healthmate/internal/api"
	"healthmate/internal/auth"
	"healthmate/internal/cache"
	"healthmate/internal/config"
	"healthmate/internal/orchestrator"
	"healthmate/internal/redis"
	"healthmate/internal/service/ai"
	"healthmate/internal/service/conversation"
	"healthmate/internal/service/health"
	"healthmate/internal/storage"
	"healthmate/internal/worker"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	if os.Getenv("HEALTHMATE_DEBUG") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfgPath := os.Getenv("HEALTHMATE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	dbType := os.Getenv("HEALTHMATE_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logrus.WithField("driver", dbType).Info("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		logrus.WithError(err).Fatal("migrate database")
	}

	// Redis backs the advisory session cache; the service runs without it.
	var sessionCache *cache.SessionCache
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		logrus.WithError(err).Warn("redis unavailable, running without session cache")
	} else {
		defer rdb.Close()
		sessionCache = cache.NewSessionCache(rdb, time.Duration(cfg.BasicConfig.SessionCacheTTL)*time.Minute)
	}

	provider := os.Getenv("HEALTHMATE_PROVIDER")
	if provider == "" {
		provider = "openai"
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		logrus.WithField("provider", provider).Fatal("provider not configured")
	}
	modelService, err := ai.NewService(context.Background(), provider, provCfg)
	if err != nil {
		logrus.WithError(err).Fatal("init model adapter")
	}

	healthService := health.NewService(db)
	conversationService := conversation.NewService(db, sessionCache,
		cfg.Orchestration.SummaryTriggerMessages, cfg.Orchestration.SummarySourceLimit)
	engine := orchestrator.NewEngine(healthService, healthService, modelService, conversationService, cfg.Orchestration)
	conversationService.SetSummarizer(engine)

	authService := auth.NewService(db, 24*time.Hour)
	dispatcher := worker.NewDispatcher(
		cfg.BasicConfig.MinWorkers,
		cfg.BasicConfig.MaxWorkers,
		cfg.BasicConfig.QueueSize,
		time.Duration(cfg.BasicConfig.WorkerIdleTimeout)*time.Minute,
	)

	handlers := api.NewHandler(healthService, conversationService, authService, engine, dispatcher)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	logrus.WithField("addr", addr).Info("server starting")
	if err := router.Run(addr); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
