package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/redis"

	"github.com/mmpotulo28/redirect/cmd/buildCFG"
	"github.com/mmpotulo28/redirect/internal/api"
	"github.com/mmpotulo28/redirect/internal/geo"
	"github.com/mmpotulo28/redirect/internal/grant"
	"github.com/mmpotulo28/redirect/internal/repo"
	"github.com/mmpotulo28/redirect/internal/resolver"
	"github.com/mmpotulo28/redirect/internal/service"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := buildCFG.ReadConfig()
	if err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}

	db, err := dbpg.New(cfg.DB.MasterDSN(), nil, cfg.DB.Options())
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	ctx := context.Background()

	rdb, err := redis.Connect(cfg.Redis.Options())
	if err != nil {
		log.Fatal().Msgf("failed to connect to Redis: %v", err)
	}
	if err := rdb.Ping(ctx); err != nil {
		log.Fatal().Msgf("failed to ping Redis: %v", err)
	}
	log.Info().Msg("Redis connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	if err := repository.MigrateUp(filepath.Join(cwd, "migrations/postgres")); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	recordCache := service.NewRecordCache(rdb, repository, cfg.Redis.TTL, &log)
	grantStore := grant.NewStore(rdb, &log)
	verifier := grant.NewVerifier(repository, grantStore, &log)
	geoClient := geo.NewClient(cfg.Geo.BaseURL, cfg.Geo.Timeout, &log)

	res := resolver.New(
		service.NewRecordSource(recordCache),
		service.NewClickWriter(repository),
		geoClient,
		grantStore,
		&log,
	)

	secureCookies := cfg.Server.GinMode == "release"
	serviceInstance := service.NewService(repository, recordCache, res, verifier, secureCookies, &log)
	app := api.NewRouters(&api.Routers{Service: serviceInstance}, cfg.Server.GinMode, &log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: app,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	log.Info().Msg("Shutdown complete")
}
