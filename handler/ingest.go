package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/services"
	"github.com/pagemill/crawl-ingest-service/common/utils"
	"github.com/pagemill/crawl-ingest-service/transform"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type IngestHandler struct {
	pages     services.PageService
	artifacts services.ArtifactService
	chunking  config.ChunkingConfig
	router    *chi.Mux
}

func NewIngestHandler(pages services.PageService, artifacts services.ArtifactService, chunking config.ChunkingConfig) *IngestHandler {
	router := chi.NewRouter()

	h := &IngestHandler{
		pages:     pages,
		artifacts: artifacts,
		chunking:  chunking,
		router:    router,
	}

	router.Post("/", h.handleIngest)
	return h
}

func (h *IngestHandler) Router() *chi.Mux {
	return h.router
}

type IngestParams struct {
	URL         string     `json:"url" validate:"required,url"`
	HTML        string     `json:"html" validate:"required"`
	LastUpdated *time.Time `json:"last_updated"`
	HTTPStatus  int        `json:"http_status"`
}

type ingestResponse struct {
	PageID    int64 `json:"page_id"`
	IsChanged bool  `json:"is_changed"`
	NumBlocks int   `json:"num_blocks"`
	NumLinks  int   `json:"num_links"`
	NumChunks int   `json:"num_chunks"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// handleIngest runs the transformer over caller-supplied HTML and persists
// the result, bypassing the fetch stage. The same unchanged-content
// short-circuit applies: identical HTML leaves blocks, links and chunks
// untouched.
func (h *IngestHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var p IngestParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := transform.Process(p.HTML, p.URL, transform.Config{
		ChunkSizeTokens: h.chunking.ChunkSizeTokens,
		OverlapFraction: h.chunking.OverlapFraction,
	})
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	crawledAt := time.Now().UTC()
	updatedAt := result.LastModified.OrElse(crawledAt)
	if p.LastUpdated != nil {
		updatedAt = *p.LastUpdated
	}

	httpStatus := p.HTTPStatus
	if httpStatus == 0 {
		httpStatus = http.StatusOK
	}

	pageID, isChanged, err := h.pages.Upsert(r.Context(), services.UpsertPageParams{
		URL:         p.URL,
		Title:       result.Title,
		ContentHash: result.Fingerprint,
		HTTPStatus:  httpStatus,
		CrawledAt:   crawledAt,
		UpdatedAt:   updatedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("url", p.URL).Msg("Page upsert failed")
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}

	if isChanged || h.chunking.ForceReparse {
		if err := h.persistArtifacts(r, pageID, result); err != nil {
			log.Error().Err(err).Int64("page", pageID).Msg("Artifact persistence failed")
			writeFailure(w, http.StatusInternalServerError, err)
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, ingestResponse{
		PageID:    pageID,
		IsChanged: isChanged,
		NumBlocks: len(result.Blocks),
		NumLinks:  len(result.Links),
		NumChunks: len(result.Chunks),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

func (h *IngestHandler) persistArtifacts(r *http.Request, pageID int64, result transform.Result) error {
	ctx := r.Context()
	if err := h.artifacts.ReplaceBlocks(ctx, pageID, result.Blocks); err != nil {
		return err
	}
	if err := h.artifacts.ReplaceLinks(ctx, pageID, result.Links); err != nil {
		return err
	}
	if err := h.artifacts.ReplaceChunks(ctx, pageID, result.Chunks); err != nil {
		return err
	}
	return h.artifacts.UpsertChunkVersions(ctx, pageID, result.Versions)
}
