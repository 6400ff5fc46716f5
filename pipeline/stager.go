// Package pipeline sequences a crawl run: candidate staging and
// reconciliation, job publishing with quiescence detection, and the
// orchestration glue between them.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/models"
	"github.com/pagemill/crawl-ingest-service/common/services"
	"github.com/pagemill/crawl-ingest-service/policy"
	"github.com/pagemill/crawl-ingest-service/sitemap"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// StageResult summarizes one staging pass. Counts are populated even when
// the pass was cut short by the time budget; Partial marks that case.
type StageResult struct {
	SourcesUsed     int                    `json:"sources_used"`
	Staged          int64                  `json:"staged"`
	InsertedNew     int64                  `json:"inserted_new_pages"`
	FlaggedExisting int64                  `json:"flagged_existing_pages"`
	Elapsed         time.Duration          `json:"-"`
	ElapsedSec      float64                `json:"elapsed_sec"`
	Partial         bool                   `json:"partial"`
	Reports         []sitemap.SourceReport `json:"details"`
}

// Stager walks the active sources, stages the admitted candidates and
// reconciles them against the page catalog.
type Stager struct {
	sources    services.SourceService
	candidates services.CandidateService
	pages      services.PageService
	client     *http.Client
	cfg        config.CrawlConfig
}

// NewStager creates a Stager. A nil client gets a default with the
// configured fetch timeout.
func NewStager(sources services.SourceService, candidates services.CandidateService, pages services.PageService, client *http.Client, cfg config.CrawlConfig) *Stager {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Stager{
		sources:    sources,
		candidates: candidates,
		pages:      pages,
		client:     client,
		cfg:        cfg,
	}
}

// Run executes one staging pass. Per-source failures are isolated; errors
// touching the database (bootstrap, staging, reconciliation) are fatal.
func (s *Stager) Run(ctx context.Context) (StageResult, error) {
	start := time.Now()
	var result StageResult

	if err := s.sources.RefreshPolicies(ctx); err != nil {
		return result, fmt.Errorf("bootstrap: %w", err)
	}
	sources, err := s.sources.GetActive(ctx)
	if err != nil {
		return result, fmt.Errorf("bootstrap: %w", err)
	}
	log.Info().Int("sources", len(sources)).Msg("Loaded active sitemap sources")

	if len(sources) > s.cfg.LimitSources {
		sources = sources[:s.cfg.LimitSources]
	}
	result.SourcesUsed = len(sources)

	deadline := start.Add(s.cfg.TimeBudget)
	discoverer := sitemap.NewDiscoverer(s.client, sitemap.Limits{
		SubSitemaps:        s.cfg.LimitSubSitemaps,
		PagesPerSubSitemap: s.cfg.LimitPagesPerSubSitemap,
	}, deadline)

	var candidates []sitemap.Candidate
	for _, src := range sources {
		if discoverer.Expired() {
			log.Warn().Msg("Time budget hit in sources loop")
			result.Partial = true
			break
		}

		found, report := s.discoverOne(ctx, discoverer, src)
		candidates = append(candidates, found...)
		result.Reports = append(result.Reports, report)
	}

	candidates = lo.UniqBy(candidates, func(c sitemap.Candidate) string { return c.URL })

	staged, err := s.candidates.ReplaceAll(ctx, candidates)
	if err != nil {
		return result, fmt.Errorf("staging: %w", err)
	}
	result.Staged = staged
	log.Info().Int64("staged", staged).Msg("Staged candidate URLs")

	cleared, err := s.pages.ClearTouched(ctx)
	if err != nil {
		return result, fmt.Errorf("reconcile: %w", err)
	}
	result.InsertedNew, err = s.pages.InsertNewFromCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("reconcile: %w", err)
	}
	result.FlaggedExisting, err = s.pages.FlagStaleFromCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("reconcile: %w", err)
	}

	result.Elapsed = time.Since(start)
	result.ElapsedSec = result.Elapsed.Seconds()

	log.Info().
		Int64("cleared", cleared).
		Int64("inserted_new", result.InsertedNew).
		Int64("flagged_existing", result.FlaggedExisting).
		Dur("elapsed", result.Elapsed).
		Msg("Staging pass complete")
	return result, nil
}

// discoverOne handles a single source. Seed mode bypasses fetch and parse
// entirely; the seed URL just has to pass its own policy.
func (s *Stager) discoverOne(ctx context.Context, d *sitemap.Discoverer, src models.SitemapSource) ([]sitemap.Candidate, sitemap.SourceReport) {
	report := sitemap.SourceReport{
		SourceID:      src.ID,
		IndexURL:      src.IndexURL,
		DiscoveryMode: src.DiscoveryMode,
	}

	pol, err := policy.ParsePolicy(src.Policy)
	if err != nil {
		log.Warn().Err(err).Int64("source", src.ID).Msg("Skipping source with malformed policy")
		report.Error = err.Error()
		return nil, report
	}

	if src.DiscoveryMode == models.DiscoveryModeSeed {
		accepted := pol.Allow(src.IndexURL)
		report.SeedAccepted = &accepted
		if !accepted {
			log.Info().Int64("source", src.ID).Str("url", src.IndexURL).Msg("Seed URL filtered out")
			return nil, report
		}
		return []sitemap.Candidate{{
			URL:      src.IndexURL,
			SourceID: src.ID,
			Origin:   sitemap.OriginSeed,
		}}, report
	}

	return d.DiscoverSource(ctx, src, pol)
}
