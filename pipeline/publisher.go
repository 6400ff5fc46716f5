package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/messaging"
	"github.com/pagemill/crawl-ingest-service/common/models"
	"github.com/pagemill/crawl-ingest-service/common/services"

	"github.com/rs/zerolog/log"
)

// JobPublisher is the slice of the message broker the queue manager needs.
type JobPublisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) error
}

// QueueManager owns the publish loop of one run: it seeds the initial job
// set, drains pending jobs onto the work channel in batches, and confirms
// quiescence before marking the run complete.
type QueueManager struct {
	runs   services.RunService
	jobs   services.JobService
	broker JobPublisher
	cfg    config.CrawlConfig
}

// NewQueueManager creates a QueueManager.
func NewQueueManager(runs services.RunService, jobs services.JobService, broker JobPublisher, cfg config.CrawlConfig) *QueueManager {
	return &QueueManager{
		runs:   runs,
		jobs:   jobs,
		broker: broker,
		cfg:    cfg,
	}
}

// Run executes the publish loop until the run is quiescent or a fatal error
// occurs. On error the run is left non-terminal for external resumption.
func (m *QueueManager) Run(ctx context.Context, runGUID string) error {
	seeded, err := m.jobs.SeedFromPages(ctx, runGUID)
	if err != nil {
		return fmt.Errorf("seeding run %s: %w", runGUID, err)
	}
	log.Info().Str("run", runGUID).Int64("seeded", seeded).Msg("Seeded job queue")

	for {
		batch, err := m.jobs.PendingBatch(ctx, runGUID, m.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("selecting batch for run %s: %w", runGUID, err)
		}

		if len(batch) == 0 {
			quiescent, err := m.checkQuiescence(ctx, runGUID)
			if err != nil {
				return fmt.Errorf("quiescence check for run %s: %w", runGUID, err)
			}
			if quiescent {
				log.Info().Str("run", runGUID).Msg("No active work left; run is complete")
				if err := m.runs.SetStatus(ctx, runGUID, models.RunStatusComplete); err != nil {
					return fmt.Errorf("completing run %s: %w", runGUID, err)
				}
				return nil
			}

			log.Info().Str("run", runGUID).Dur("sleep", m.cfg.MainLoopSleep).Msg("Workers still active; waiting")
			if err := sleep(ctx, m.cfg.MainLoopSleep); err != nil {
				return err
			}
			continue
		}

		if err := m.publishBatch(ctx, runGUID, batch); err != nil {
			return err
		}
	}
}

// publishBatch marks the batch published and emits one message per job.
// The conditional update keeps a published job from ever being selected
// again.
func (m *QueueManager) publishBatch(ctx context.Context, runGUID string, batch []models.Job) error {
	ids := make([]int64, len(batch))
	for i, j := range batch {
		ids[i] = j.ID
	}

	published, err := m.jobs.MarkPublished(ctx, ids)
	if err != nil {
		return fmt.Errorf("publishing batch for run %s: %w", runGUID, err)
	}

	for _, j := range batch {
		msg := messaging.JobMessage{
			JobID:              j.ID,
			URL:                j.URL,
			RunGUID:            j.RunGUID,
			CheckHash:          j.CheckHash,
			ContextualPatterns: j.ContextualPatterns.String,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding job %d: %w", j.ID, err)
		}
		if err := m.broker.PublishSync(ctx, messaging.SubjectScrapeJobs, payload); err != nil {
			return fmt.Errorf("publishing job %d: %w", j.ID, err)
		}
	}

	log.Info().Str("run", runGUID).Int64("published", published).Int("batch", len(batch)).Msg("Published job batch")
	return nil
}

// checkQuiescence samples the active job count up to the configured number
// of times. Any non-zero reading short-circuits to non-quiescent. The
// debounce exists because worker claim and link discovery are asynchronous:
// one zero reading can be a worker about to insert more jobs.
func (m *QueueManager) checkQuiescence(ctx context.Context, runGUID string) (bool, error) {
	for i := 0; i < m.cfg.QuiescenceChecks; i++ {
		active, err := m.jobs.CountActive(ctx, runGUID)
		if err != nil {
			return false, err
		}
		log.Info().
			Str("run", runGUID).
			Int("check", i+1).
			Int("of", m.cfg.QuiescenceChecks).
			Int64("active", active).
			Msg("Quiescence check")

		if active > 0 {
			return false, nil
		}
		if i < m.cfg.QuiescenceChecks-1 {
			if err := sleep(ctx, m.cfg.QuiescenceSleep); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
