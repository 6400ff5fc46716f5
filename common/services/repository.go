// Package services holds the PostgreSQL repositories behind the pipeline.
// Each repository is exposed through a small interface so the stager, queue
// manager and workers can be exercised against in-memory fakes.
package services

import (
	"context"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/models"
	"github.com/pagemill/crawl-ingest-service/sitemap"

	"github.com/pagemill/crawl-ingest-service/transform"
)

// RunService defines run lifecycle operations on pipeline_state.
type RunService interface {
	// Create inserts a new run row with status starting.
	Create(ctx context.Context, runGUID string) (models.Run, error)

	// LatestGUID returns the newest run's token.
	LatestGUID(ctx context.Context) (string, error)

	// SetStatus moves a run to the given lifecycle state.
	SetStatus(ctx context.Context, runGUID string, status models.RunStatus) error

	// ResetPipelineData wipes all transactional pipeline data.
	ResetPipelineData(ctx context.Context) error
}

// JobService defines operations on the urls_to_process work catalog.
type JobService interface {
	// PendingBatch selects up to limit pending jobs for the run in
	// insertion order.
	PendingBatch(ctx context.Context, runGUID string, limit int) ([]models.Job, error)

	// MarkPublished flips the given jobs from pending to published and
	// reports how many rows actually transitioned.
	MarkPublished(ctx context.Context, ids []int64) (int64, error)

	// Claim atomically takes ownership of a job for a worker. False means
	// another worker got there first.
	Claim(ctx context.Context, id int64, workerID string) (bool, error)

	// Complete marks a job done.
	Complete(ctx context.Context, id int64) error

	// Fail marks a job failed with the error recorded.
	Fail(ctx context.Context, id int64, errorMessage string) error

	// InsertBatch adds newly discovered jobs, skipping URLs already queued
	// for the run.
	InsertBatch(ctx context.Context, jobs []models.NewJob) (int64, error)

	// SeedFromPages creates the run's initial pending jobs from catalog
	// pages flagged needs_update.
	SeedFromPages(ctx context.Context, runGUID string) (int64, error)

	// CountActive counts jobs still published or processing for the run.
	CountActive(ctx context.Context, runGUID string) (int64, error)
}

// UpsertPageParams is the input to the page upsert function.
type UpsertPageParams struct {
	URL         string
	Title       string
	ContentHash string
	HTTPStatus  int
	CrawledAt   time.Time
	UpdatedAt   time.Time
}

// PageService defines operations on the pages catalog.
type PageService interface {
	// ContentHash returns the stored fingerprint for a URL; found is false
	// when the page is unknown or has no hash yet.
	ContentHash(ctx context.Context, url string) (hash string, found bool, err error)

	// Upsert creates or refreshes a page via fn_upsert_page and reports
	// whether the content changed.
	Upsert(ctx context.Context, params UpsertPageParams) (pageID int64, isChanged bool, err error)

	// ClearTouched resets touched_this_run TRUE rows back to NULL.
	ClearTouched(ctx context.Context) (int64, error)

	// InsertNewFromCandidates creates page rows for staged URLs not yet in
	// the catalog.
	InsertNewFromCandidates(ctx context.Context) (int64, error)

	// FlagStaleFromCandidates marks known pages whose candidate lastmod is
	// newer than the recorded update time.
	FlagStaleFromCandidates(ctx context.Context) (int64, error)
}

// SourceService defines read access to sitemap source configuration.
type SourceService interface {
	// GetActive returns active sources ordered by priority desc, id asc.
	GetActive(ctx context.Context) ([]models.SitemapSource, error)

	// RefreshPolicies runs the opaque policy refresh procedure.
	RefreshPolicies(ctx context.Context) error
}

// CandidateService defines the staging table operations.
type CandidateService interface {
	// ReplaceAll truncates the staging table and loads the given
	// candidates, returning the staged row count.
	ReplaceAll(ctx context.Context, candidates []sitemap.Candidate) (int64, error)
}

// ArtifactService persists transformer output through the replace
// procedures; each call supersedes all prior rows for the page.
type ArtifactService interface {
	ReplaceBlocks(ctx context.Context, pageID int64, blocks []transform.Block) error
	ReplaceLinks(ctx context.Context, pageID int64, links []transform.Link) error
	ReplaceChunks(ctx context.Context, pageID int64, chunks []transform.Chunk) error
	UpsertChunkVersions(ctx context.Context, pageID int64, versions []transform.VersionHit) error
}

// AppConfigService reads operator-managed settings from app_config.
type AppConfigService interface {
	// LanguageExclusions returns the locale tokens used by link discovery.
	LanguageExclusions(ctx context.Context) ([]string, error)
}
