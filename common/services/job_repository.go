package services

import (
	"context"
	"fmt"

	"github.com/pagemill/crawl-ingest-service/common/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository is the PostgreSQL implementation of JobService.
type JobRepository struct {
	db *pgxpool.Pool
}

// NewJobRepository creates a new PostgreSQL JobRepository.
func NewJobRepository(db *pgxpool.Pool) JobService {
	return &JobRepository{db: db}
}

// PendingBatch selects up to limit pending jobs for the run in insertion
// order.
func (r *JobRepository) PendingBatch(ctx context.Context, runGUID string, limit int) ([]models.Job, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, run_guid, url, status, source, worker_id, check_hash,
		        contextual_patterns, processed_at, error_message, created_at
		   FROM urls_to_process
		  WHERE run_guid = $1 AND status = $2
		  ORDER BY id
		  LIMIT $3`,
		runGUID, models.JobStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(
			&j.ID, &j.RunGUID, &j.URL, &j.Status, &j.Source, &j.WorkerID,
			&j.CheckHash, &j.ContextualPatterns, &j.ProcessedAt,
			&j.ErrorMessage, &j.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkPublished flips pending jobs to published. The status guard keeps a
// job from being published twice by overlapping batches.
func (r *JobRepository) MarkPublished(ctx context.Context, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE urls_to_process
		    SET status = $1
		  WHERE id = ANY($2) AND status = $3`,
		models.JobStatusPublished, ids, models.JobStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("marking jobs published: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Claim atomically takes ownership of a job. The conditional status check
// makes concurrent claims race-free: exactly one worker sees one row
// affected.
func (r *JobRepository) Claim(ctx context.Context, id int64, workerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE urls_to_process
		    SET status = $1, worker_id = $2
		  WHERE id = $3 AND status IN ($4, $5)`,
		models.JobStatusProcessing, workerID, id,
		models.JobStatusPublished, models.JobStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claiming job %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete marks a job done.
func (r *JobRepository) Complete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE urls_to_process
		    SET status = $1, processed_at = now()
		  WHERE id = $2`,
		models.JobStatusComplete, id,
	)
	if err != nil {
		return fmt.Errorf("completing job %d: %w", id, err)
	}
	return nil
}

// Fail marks a job failed with the error recorded.
func (r *JobRepository) Fail(ctx context.Context, id int64, errorMessage string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE urls_to_process
		    SET status = $1, processed_at = now(), error_message = $2
		  WHERE id = $3`,
		models.JobStatusFailed, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("failing job %d: %w", id, err)
	}
	return nil
}

// InsertBatch adds newly discovered jobs. Duplicate URLs within the run are
// dropped by the conflict target.
func (r *JobRepository) InsertBatch(ctx context.Context, jobs []models.NewJob) (int64, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(
			`INSERT INTO urls_to_process (run_guid, url, source, check_hash, contextual_patterns)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (run_guid, url) DO NOTHING`,
			j.RunGUID, j.URL, j.Source, j.CheckHash, j.ContextualPatterns,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range jobs {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting jobs: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// SeedFromPages creates the run's initial pending jobs from pages flagged
// needs_update. Seed jobs skip the hash short-circuit so a flagged page is
// always reprocessed.
func (r *JobRepository) SeedFromPages(ctx context.Context, runGUID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO urls_to_process (run_guid, url, source, check_hash)
		 SELECT $1, p.url, COALESCE(p.source, 'sitemap'), FALSE
		   FROM pages p
		  WHERE p.needs_update IS TRUE
		 ON CONFLICT (run_guid, url) DO NOTHING`,
		runGUID,
	)
	if err != nil {
		return 0, fmt.Errorf("seeding jobs from pages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountActive counts jobs still published or processing for the run.
func (r *JobRepository) CountActive(ctx context.Context, runGUID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		   FROM urls_to_process
		  WHERE run_guid = $1 AND status IN ($2, $3)`,
		runGUID, models.JobStatusPublished, models.JobStatusProcessing,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active jobs: %w", err)
	}
	return count, nil
}
