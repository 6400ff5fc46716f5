package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/db"
	"github.com/pagemill/crawl-ingest-service/common/messaging"
	"github.com/pagemill/crawl-ingest-service/common/services"
	"github.com/pagemill/crawl-ingest-service/handler"
	"github.com/pagemill/crawl-ingest-service/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

type AppHttpServer struct {
	router     *chi.Mux
	cfg        config.Config
	server     *http.Server
	db         *db.DB
	natsClient *messaging.NatsBroker
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// A discovery pass can legitimately run for minutes.
	r.Use(middleware.Timeout(16 * time.Minute))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

// SetDB sets the database dependency
func (s *AppHttpServer) SetDB(db *db.DB) {
	s.db = db
}

// SetNatsClient sets the NATS client dependency
func (s *AppHttpServer) SetNatsClient(client *messaging.NatsBroker) {
	s.natsClient = client
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	if s.db == nil {
		log.Warn().Msg("DB dependency not set")
	}
	if s.natsClient == nil {
		log.Warn().Msg("NATS client dependency not set")
	}

	// Public liveness endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"crawl-ingest-service"}`))
	})

	runs := services.NewRunRepository(s.db.Pool)
	jobs := services.NewJobRepository(s.db.Pool)
	pages := services.NewPageRepository(s.db.Pool)
	sources := services.NewSourceRepository(s.db.Pool)
	candidates := services.NewCandidateRepository(s.db.Pool)
	artifacts := services.NewArtifactRepository(s.db.Pool)

	stager := pipeline.NewStager(sources, candidates, pages, nil, s.cfg.Crawl)
	queue := pipeline.NewQueueManager(runs, jobs, s.natsClient, s.cfg.Crawl)
	orchestrator := pipeline.NewOrchestrator(runs, stager, queue)

	pipelineHandler := handler.NewPipelineHandler(stager, orchestrator, s.cfg)
	ingestHandler := handler.NewIngestHandler(pages, artifacts, s.cfg.Chunking)
	filterHandler := handler.NewFilterHandler()
	healthHandler := handler.NewHealthHandler(s.db)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/discovery", pipelineHandler.Discovery)
		r.Post("/orchestrate", pipelineHandler.Orchestrate)
		r.Post("/reset", pipelineHandler.Reset)

		r.Mount("/filter", filterHandler.Router())
		r.Mount("/ingest", ingestHandler.Router())
		r.Mount("/health", healthHandler.Router())
	})
}

func (s *AppHttpServer) start() error {
	r := s.router
	cfg := s.cfg
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         cfg.Listen.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 16 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
