package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/db"
	"github.com/pagemill/crawl-ingest-service/common/logger"
	"github.com/pagemill/crawl-ingest-service/common/messaging"
	"github.com/pagemill/crawl-ingest-service/common/services"
	"github.com/pagemill/crawl-ingest-service/common/storage"
	"github.com/pagemill/crawl-ingest-service/scraper"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()

	logger.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	dbConn, err := db.SetupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup database")
	}
	defer dbConn.Close()

	natsClient, err := messaging.NewNatsBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup NATS client")
	}
	defer natsClient.Close()

	var store storage.StorageService
	if cfg.GCS.Bucket != "" {
		store, err = storage.NewGCSStorage(ctx, storage.GCSConfig{
			ProjectID:       cfg.GCS.ProjectID,
			CredentialsFile: cfg.GCS.CredentialsFile,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to setup GCS storage")
		}
	} else {
		log.Warn().Msg("No storage bucket configured; raw captures will not be kept")
	}

	fetcher, err := scraper.NewFetcher(cfg.Crawl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fetcher")
	}

	worker, err := scraper.NewWorker(
		services.NewJobRepository(dbConn.Pool),
		services.NewPageRepository(dbConn.Pool),
		services.NewArtifactRepository(dbConn.Pool),
		services.NewAppConfigRepository(dbConn.Pool),
		store,
		cfg.GCS.Bucket,
		dbConn.Redis,
		fetcher,
		cfg.Chunking,
		cfg.Crawl,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scrape worker")
	}

	if err := worker.Start(ctx, natsClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scrape worker")
	}
	defer worker.Stop()

	server, err := NewAppHttpServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the server")
	}

	server.SetDB(dbConn)
	server.SetNatsClient(natsClient)
	server.setupRoute()

	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")

	select {
	case <-shutdown:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server gracefully stopped")
}
