package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/messaging"
	"github.com/pagemill/crawl-ingest-service/common/models"
	"github.com/pagemill/crawl-ingest-service/common/redis"
	"github.com/pagemill/crawl-ingest-service/common/services"
	"github.com/pagemill/crawl-ingest-service/common/storage"
	"github.com/pagemill/crawl-ingest-service/common/work"
	"github.com/pagemill/crawl-ingest-service/transform"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const seenSetTTL = 24 * time.Hour

// JobOutcome summarizes one executed scrape job for the pool's result
// channel.
type JobOutcome struct {
	JobID      int64
	URL        string
	PageID     int64
	Skipped    bool
	Discovered int64
}

// jobAck is the slice of a JetStream message the job handler needs. Ack
// removes the message from the channel; Nak requests redelivery.
type jobAck interface {
	Ack() error
	Nak() error
}

// Worker consumes scrape jobs from the work channel and runs the full
// per-page flow: claim, fetch, transform, persist, store renditions, and
// feed discovered links back into the job catalog.
type Worker struct {
	id        string
	jobs      services.JobService
	pages     services.PageService
	artifacts services.ArtifactService
	appConfig services.AppConfigService
	storage   storage.StorageService
	bucket    string
	cache     *redis.RedisClient
	fetcher   Fetcher
	pool      *work.Pool[JobOutcome]
	chunking  config.ChunkingConfig
	cfg       config.CrawlConfig

	consume jetstream.ConsumeContext
}

// NewWorker wires a scrape worker. storageSvc and cache may be nil; the
// worker then skips rendition storage and the seen-URL cache.
func NewWorker(
	jobs services.JobService,
	pages services.PageService,
	artifacts services.ArtifactService,
	appConfig services.AppConfigService,
	storageSvc storage.StorageService,
	bucket string,
	cache *redis.RedisClient,
	fetcher Fetcher,
	chunking config.ChunkingConfig,
	cfg config.CrawlConfig,
) (*Worker, error) {
	poolCfg := work.DefaultPoolConfig()
	poolCfg.NumWorkers = cfg.WorkerCount
	poolCfg.TaskTimeout = cfg.FetchTimeout + 60*time.Second

	pool, err := work.NewPool[JobOutcome](poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	return &Worker{
		id:        "scraper-" + uuid.NewString(),
		jobs:      jobs,
		pages:     pages,
		artifacts: artifacts,
		appConfig: appConfig,
		storage:   storageSvc,
		bucket:    bucket,
		cache:     cache,
		fetcher:   fetcher,
		pool:      pool,
		chunking:  chunking,
		cfg:       cfg,
	}, nil
}

// Start attaches the worker to the durable job consumer and begins
// processing. It returns once the subscription is live.
func (w *Worker) Start(ctx context.Context, broker *messaging.NatsBroker) error {
	consumer, err := messaging.JobConsumer(ctx, broker)
	if err != nil {
		return fmt.Errorf("getting job consumer: %w", err)
	}

	w.pool.Start(ctx, "scrape")
	go w.drainResults()

	consume, err := consumer.Consume(w.dispatch(ctx))
	if err != nil {
		return fmt.Errorf("starting job consumption: %w", err)
	}
	w.consume = consume

	log.Info().Str("worker", w.id).Int("concurrency", w.cfg.WorkerCount).Msg("Scrape worker started")
	return nil
}

// Stop detaches from the channel and drains the pool.
func (w *Worker) Stop() {
	if w.consume != nil {
		w.consume.Stop()
	}
	w.pool.Stop()
}

func (w *Worker) drainResults() {
	for res := range w.pool.Results() {
		if res.Error != nil {
			log.Error().Err(res.Error).Str("task", res.TaskID).Dur("took", res.Duration).Msg("Scrape job failed")
			continue
		}
		log.Debug().
			Str("task", res.TaskID).
			Int64("page", res.Result.PageID).
			Bool("skipped", res.Result.Skipped).
			Int64("discovered", res.Result.Discovered).
			Dur("took", res.Duration).
			Msg("Scrape job finished")
	}
}

// dispatch decodes each message and hands it to the pool. A message that
// fails to decode is poison: it is acked and dropped, never redelivered.
func (w *Worker) dispatch(ctx context.Context) jetstream.MessageHandler {
	return func(msg jetstream.Msg) {
		var job messaging.JobMessage
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			log.Error().Err(err).Msg("Dropping malformed job message")
			_ = msg.Ack()
			return
		}

		task, err := work.NewTask(
			func(taskCtx context.Context) (JobOutcome, error) {
				return w.handleJob(taskCtx, job, msg)
			},
			work.WithID[JobOutcome](fmt.Sprintf("job-%d", job.JobID)),
		)
		if err != nil {
			log.Error().Err(err).Int64("job", job.JobID).Msg("Creating task")
			_ = msg.Nak()
			return
		}

		if err := w.pool.Submit(ctx, task); err != nil {
			log.Error().Err(err).Int64("job", job.JobID).Msg("Submitting task")
			_ = msg.Nak()
		}
	}
}

// handleJob runs one job end to end. DB errors before the claim succeeds
// are retried through the channel (Nak); every later failure is recorded on
// the job itself and the message acked, so the run can converge.
func (w *Worker) handleJob(ctx context.Context, job messaging.JobMessage, msg jobAck) (JobOutcome, error) {
	claimed, err := w.jobs.Claim(ctx, job.JobID, w.id)
	if err != nil {
		_ = msg.Nak()
		return JobOutcome{}, fmt.Errorf("claiming job %d: %w", job.JobID, err)
	}
	if !claimed {
		// Another worker owns it, or it already reached a terminal state.
		_ = msg.Ack()
		return JobOutcome{JobID: job.JobID, URL: job.URL, Skipped: true}, nil
	}

	fetched, err := w.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		return w.failJob(ctx, job, msg, fmt.Errorf("fetching: %w", err))
	}

	fingerprint := transform.Fingerprint(fetched.HTML)

	if job.CheckHash && !w.chunking.ForceReparse {
		stored, found, err := w.pages.ContentHash(ctx, job.URL)
		if err != nil {
			return w.failJob(ctx, job, msg, fmt.Errorf("reading stored hash: %w", err))
		}
		if found && stored == fingerprint {
			// Content unchanged: skip parsing and persistence, but still
			// walk the links so discovery keeps spreading.
			links, err := transform.ExtractLinks(fetched.HTML, job.URL)
			if err != nil {
				return w.failJob(ctx, job, msg, fmt.Errorf("extracting links: %w", err))
			}
			discovered, err := w.discoverAndQueue(ctx, job, links)
			if err != nil {
				return w.failJob(ctx, job, msg, err)
			}
			if err := w.jobs.Complete(ctx, job.JobID); err != nil {
				_ = msg.Nak()
				return JobOutcome{}, fmt.Errorf("completing job %d: %w", job.JobID, err)
			}
			_ = msg.Ack()
			return JobOutcome{JobID: job.JobID, URL: job.URL, Skipped: true, Discovered: discovered}, nil
		}
	}

	result, err := transform.Process(fetched.HTML, job.URL, transform.Config{
		ChunkSizeTokens: w.chunking.ChunkSizeTokens,
		OverlapFraction: w.chunking.OverlapFraction,
	})
	if err != nil {
		return w.failJob(ctx, job, msg, fmt.Errorf("transforming: %w", err))
	}

	crawledAt := time.Now().UTC()
	pageID, isChanged, err := w.pages.Upsert(ctx, services.UpsertPageParams{
		URL:         job.URL,
		Title:       result.Title,
		ContentHash: result.Fingerprint,
		HTTPStatus:  fetched.StatusCode,
		CrawledAt:   crawledAt,
		UpdatedAt:   result.LastModified.OrElse(crawledAt),
	})
	if err != nil {
		return w.failJob(ctx, job, msg, fmt.Errorf("upserting page: %w", err))
	}

	if isChanged || w.chunking.ForceReparse {
		if err := w.persistArtifacts(ctx, pageID, result); err != nil {
			return w.failJob(ctx, job, msg, err)
		}
	}

	w.storeRenditions(ctx, job.URL, fetched.HTML)

	discovered, err := w.discoverAndQueue(ctx, job, result.Links)
	if err != nil {
		return w.failJob(ctx, job, msg, err)
	}

	if err := w.jobs.Complete(ctx, job.JobID); err != nil {
		_ = msg.Nak()
		return JobOutcome{}, fmt.Errorf("completing job %d: %w", job.JobID, err)
	}
	_ = msg.Ack()

	return JobOutcome{JobID: job.JobID, URL: job.URL, PageID: pageID, Discovered: discovered}, nil
}

// failJob records the error on the job and acks the message. The job is
// terminal; redelivering it would just fail again.
func (w *Worker) failJob(ctx context.Context, job messaging.JobMessage, msg jobAck, cause error) (JobOutcome, error) {
	if err := w.jobs.Fail(ctx, job.JobID, cause.Error()); err != nil {
		log.Error().Err(err).Int64("job", job.JobID).Msg("Recording job failure")
	}
	_ = msg.Ack()
	return JobOutcome{}, fmt.Errorf("job %d (%s): %w", job.JobID, job.URL, cause)
}

func (w *Worker) persistArtifacts(ctx context.Context, pageID int64, result transform.Result) error {
	if err := w.artifacts.ReplaceBlocks(ctx, pageID, result.Blocks); err != nil {
		return fmt.Errorf("replacing blocks: %w", err)
	}
	if err := w.artifacts.ReplaceLinks(ctx, pageID, result.Links); err != nil {
		return fmt.Errorf("replacing links: %w", err)
	}
	if err := w.artifacts.ReplaceChunks(ctx, pageID, result.Chunks); err != nil {
		return fmt.Errorf("replacing chunks: %w", err)
	}
	if err := w.artifacts.UpsertChunkVersions(ctx, pageID, result.Versions); err != nil {
		return fmt.Errorf("upserting chunk versions: %w", err)
	}
	return nil
}

// storeRenditions uploads the raw HTML and a markdown rendition. Storage is
// best-effort: a failed upload is logged, never fails the job.
func (w *Worker) storeRenditions(ctx context.Context, pageURL, html string) {
	if w.storage == nil || w.bucket == "" {
		return
	}

	if name := storage.ObjectNameForURL(storage.ScrapedDataPrefix, pageURL, ".html"); name != "" {
		if _, err := w.storage.Upload(ctx, w.bucket, name, []byte(html), "text/html; charset=utf-8"); err != nil {
			log.Warn().Err(err).Str("object", name).Msg("Storing raw html")
		}
	}

	markdown, err := transform.Markdown(html)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Rendering markdown")
		return
	}
	if name := storage.ObjectNameForURL(storage.MarkdownPrefix, pageURL, ".md"); name != "" {
		if _, err := w.storage.Upload(ctx, w.bucket, name, []byte(markdown), "text/markdown; charset=utf-8"); err != nil {
			log.Warn().Err(err).Str("object", name).Msg("Storing markdown")
		}
	}
}

// discoverAndQueue filters the page's links and inserts them as new jobs
// for the run. The catalog's uniqueness constraint drops duplicates; the
// seen-URL cache just saves the round trip.
func (w *Worker) discoverAndQueue(ctx context.Context, job messaging.JobMessage, links []transform.Link) (int64, error) {
	exclusions := w.cfg.LanguageExclusions
	if w.appConfig != nil {
		dbExclusions, err := w.appConfig.LanguageExclusions(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Reading language exclusions; using configured defaults")
		} else if len(dbExclusions) > 0 {
			exclusions = dbExclusions
		}
	}

	urls := DiscoverLinks(links, job.URL, exclusions, SplitPatterns(job.ContextualPatterns))
	urls = w.filterSeen(ctx, job.RunGUID, urls)
	if len(urls) == 0 {
		return 0, nil
	}

	newJobs := lo.Map(urls, func(u string, _ int) models.NewJob {
		return models.NewJob{
			RunGUID:            job.RunGUID,
			URL:                u,
			Source:             "link_discovery",
			CheckHash:          true,
			ContextualPatterns: job.ContextualPatterns,
		}
	})

	inserted, err := w.jobs.InsertBatch(ctx, newJobs)
	if err != nil {
		return 0, fmt.Errorf("queueing discovered links: %w", err)
	}
	return inserted, nil
}

// filterSeen drops URLs already observed in this run. Cache failures fall
// back to keeping the URL; the DB constraint stays authoritative.
func (w *Worker) filterSeen(ctx context.Context, runGUID string, urls []string) []string {
	if w.cache == nil || len(urls) == 0 {
		return urls
	}

	key := "crawl:seen:" + runGUID
	kept := urls[:0]
	for _, u := range urls {
		added, err := w.cache.SAdd(ctx, key, u)
		if err != nil {
			log.Warn().Err(err).Msg("Seen-URL cache unavailable; keeping URL")
			kept = append(kept, u)
			continue
		}
		if added > 0 {
			kept = append(kept, u)
		}
	}
	if err := w.cache.Expire(ctx, key, seenSetTTL); err != nil {
		log.Warn().Err(err).Msg("Setting seen-set TTL")
	}
	return kept
}
