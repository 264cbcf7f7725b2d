// Package main is the entry point for the qfolio portfolio selection service.
// It wires the security universe, price history, return statistics, QUBO
// construction and the solver layer behind an HTTP API, with an optional
// cron schedule for periodic re-selection.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/qfolio/internal/config"
	"github.com/aristath/qfolio/internal/database"
	"github.com/aristath/qfolio/internal/modules/riskmodel"
	"github.com/aristath/qfolio/internal/modules/selection"
	"github.com/aristath/qfolio/internal/modules/universe"
	"github.com/aristath/qfolio/internal/scheduler"
	"github.com/aristath/qfolio/internal/server"
	"github.com/aristath/qfolio/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting qfolio")

	universeDB := mustOpenDB(log, cfg, "universe", database.ProfileStandard)
	defer universeDB.Close()
	historyDB := mustOpenDB(log, cfg, "history", database.ProfileStandard)
	defer historyDB.Close()
	runsDB := mustOpenDB(log, cfg, "runs", database.ProfileStandard)
	defer runsDB.Close()
	cacheDB := mustOpenDB(log, cfg, "cache", database.ProfileCache)
	defer cacheDB.Close()

	securities, err := universe.NewSecurityRepository(universeDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize security repository")
	}
	history, err := universe.NewHistoryDB(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history store")
	}
	runs, err := selection.NewRunRepository(runsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run repository")
	}

	statsBuilder := riskmodel.NewBuilder(history, log)
	statsCache, err := riskmodel.NewCache(cacheDB, riskmodel.DefaultCacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize statistics cache")
	}
	statsBuilder.SetCache(statsCache)

	selectionService := selection.NewService(securities, statsBuilder, runs, selection.Defaults{
		LambdaRisk:   cfg.RiskAversion,
		Cardinality:  cfg.Cardinality,
		LookbackDays: cfg.LookbackDays,
		Solver:       cfg.Solver,
	}, log)

	sched := scheduler.New(log)
	if cfg.SelectionSchedule != "" {
		job := scheduler.NewSelectionJob(selectionService, log)
		if err := sched.AddJob(cfg.SelectionSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.SelectionSchedule).Msg("Invalid selection schedule")
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(server.Config{
		Log:              log,
		Config:           cfg,
		UniverseDB:       universeDB,
		HistoryDB:        historyDB,
		RunsDB:           runsDB,
		CacheDB:          cacheDB,
		Securities:       securities,
		History:          history,
		SelectionService: selectionService,
		Runs:             runs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func mustOpenDB(log zerolog.Logger, cfg *config.Config, name string, profile database.DatabaseProfile) *database.DB {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(name),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
	}
	return db
}
