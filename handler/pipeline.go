// Package handler wires the pipeline's HTTP entry points. Handlers stay
// thin: decode, validate, call the service, encode.
package handler

import (
	"context"
	"net/http"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/utils"
	"github.com/pagemill/crawl-ingest-service/pipeline"
	"github.com/pagemill/crawl-ingest-service/sitemap"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// StagerService runs one candidate staging pass.
type StagerService interface {
	Run(ctx context.Context) (pipeline.StageResult, error)
}

// OrchestratorService starts and resets full pipeline runs.
type OrchestratorService interface {
	StartRun(ctx context.Context) (string, pipeline.StageResult, error)
	Reset(ctx context.Context) error
}

type PipelineHandler struct {
	stager StagerService
	orch   OrchestratorService
	cfg    config.Config
	router *chi.Mux
}

func NewPipelineHandler(stager StagerService, orch OrchestratorService, cfg config.Config) *PipelineHandler {
	router := chi.NewRouter()

	h := &PipelineHandler{
		stager: stager,
		orch:   orch,
		cfg:    cfg,
		router: router,
	}

	router.Post("/discovery", h.Discovery)
	router.Post("/orchestrate", h.Orchestrate)
	router.Post("/reset", h.Reset)
	return h
}

func (h *PipelineHandler) Router() *chi.Mux {
	return h.router
}

type limitsPayload struct {
	Sources            int     `json:"sources"`
	SubSitemaps        int     `json:"sub_sitemaps"`
	PagesPerSubSitemap int     `json:"pages_per_sub_sitemap"`
	TimeBudgetSec      float64 `json:"time_budget_sec"`
}

type discoveryResponse struct {
	Ok              bool                   `json:"ok"`
	DB              string                 `json:"db"`
	SourcesUsed     int                    `json:"sources_used"`
	Staged          int64                  `json:"staged"`
	InsertedNew     int64                  `json:"inserted_new_pages"`
	FlaggedExisting int64                  `json:"flagged_existing_pages"`
	ElapsedSec      float64                `json:"elapsed_sec"`
	Partial         bool                   `json:"partial,omitempty"`
	Limits          limitsPayload          `json:"limits"`
	Details         []sitemap.SourceReport `json:"details"`
}

func (h *PipelineHandler) Discovery(w http.ResponseWriter, r *http.Request) {
	result, err := h.stager.Run(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Staging pass failed")
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, discoveryResponse{
		Ok:              true,
		DB:              h.cfg.PgSql.Database,
		SourcesUsed:     result.SourcesUsed,
		Staged:          result.Staged,
		InsertedNew:     result.InsertedNew,
		FlaggedExisting: result.FlaggedExisting,
		ElapsedSec:      result.ElapsedSec,
		Partial:         result.Partial,
		Limits: limitsPayload{
			Sources:            h.cfg.Crawl.LimitSources,
			SubSitemaps:        h.cfg.Crawl.LimitSubSitemaps,
			PagesPerSubSitemap: h.cfg.Crawl.LimitPagesPerSubSitemap,
			TimeBudgetSec:      h.cfg.Crawl.TimeBudget.Seconds(),
		},
		Details: result.Reports,
	})
}

func (h *PipelineHandler) Orchestrate(w http.ResponseWriter, r *http.Request) {
	runGUID, _, err := h.orch.StartRun(r.Context())
	if err != nil {
		log.Error().Err(err).Str("run", runGUID).Msg("Run start failed")
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"run_id": runGUID,
	})
}

func (h *PipelineHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Reset(r.Context()); err != nil {
		log.Error().Err(err).Msg("Pipeline reset failed")
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// writeFailure emits the pipeline error envelope.
func writeFailure(w http.ResponseWriter, status int, err error) {
	utils.WriteJSON(w, status, map[string]interface{}{
		"ok":    false,
		"error": err.Error(),
	})
}
