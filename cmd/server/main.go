package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/simaogato/goalflow-backend/config"
	httpadapter "github.com/simaogato/goalflow-backend/internal/adapter/http"
	"github.com/simaogato/goalflow-backend/internal/adapter/rates"
	"github.com/simaogato/goalflow-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/goalflow-backend/internal/usecase/allocation"
	"github.com/simaogato/goalflow-backend/internal/usecase/period"
	"github.com/simaogato/goalflow-backend/internal/usecase/progress"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Get(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// 1. Setup Database
	db, err := postgres.NewDB(cfg.DBConnStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 2. Initialize Repositories (Postgres)
	assetRepo := postgres.NewAssetRepository(db)
	goalRepo := postgres.NewGoalRepository(db)
	eventRepo := postgres.NewBalanceEventRepository(db)
	allocationRepo := postgres.NewAllocationRepository(db)
	periodRepo := postgres.NewPeriodRepository(db)
	contributionRepo := postgres.NewContributionRepository(db)

	// 3. Initialize Rate Converter from configured rates
	converterRates := make([]rates.Rate, 0, len(cfg.Rates))
	for _, r := range cfg.Rates {
		converterRates = append(converterRates, rates.Rate{
			From:        r.From,
			To:          r.To,
			Rate:        r.Rate,
			EffectiveAt: r.EffectiveAt,
		})
	}
	converter, err := rates.NewTableConverter(converterRates)
	if err != nil {
		logger.Fatal("failed to build rate table", zap.Error(err))
	}

	// 4. Initialize Services (Use Cases)
	// One asset-lock registry shared by every allocation writer
	assetLocks := allocation.NewAssetLocks()
	allocationManager := allocation.NewManager(eventRepo, allocationRepo, assetLocks, logger)
	periodController := period.NewController(periodRepo, eventRepo, allocationRepo, assetRepo, goalRepo, converter, assetLocks, logger)
	progressService := progress.NewService(periodRepo, contributionRepo, goalRepo, periodController, converter, logger)

	// 5. Start HTTP Server
	server := httpadapter.NewServer(
		allocationManager,
		periodController,
		progressService,
		assetRepo,
		goalRepo,
		periodRepo,
		contributionRepo,
		logger,
	)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(cfg.APIToken),
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to serve http server", zap.Error(err))
		}
	}()

	waitForShutdown(httpServer, logger)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(httpServer *http.Server, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down gracefully", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	logger.Info("http server stopped")
}
