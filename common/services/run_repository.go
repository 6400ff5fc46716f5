package services

import (
	"context"
	"fmt"

	"github.com/pagemill/crawl-ingest-service/common/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepository is the PostgreSQL implementation of RunService.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a new PostgreSQL RunRepository.
func NewRunRepository(db *pgxpool.Pool) RunService {
	return &RunRepository{db: db}
}

// Create inserts a new run row with status starting.
func (r *RunRepository) Create(ctx context.Context, runGUID string) (models.Run, error) {
	var run models.Run
	err := r.db.QueryRow(ctx,
		`INSERT INTO pipeline_state (run_guid, status)
		 VALUES ($1, $2)
		 RETURNING run_guid, status, created_at`,
		runGUID, models.RunStatusStarting,
	).Scan(&run.RunGUID, &run.Status, &run.CreatedAt)
	if err != nil {
		return models.Run{}, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// LatestGUID returns the newest run's token.
func (r *RunRepository) LatestGUID(ctx context.Context) (string, error) {
	var guid string
	err := r.db.QueryRow(ctx,
		`SELECT run_guid FROM pipeline_state ORDER BY created_at DESC LIMIT 1`,
	).Scan(&guid)
	if err != nil {
		return "", fmt.Errorf("selecting latest run: %w", err)
	}
	return guid, nil
}

// SetStatus moves a run to the given lifecycle state.
func (r *RunRepository) SetStatus(ctx context.Context, runGUID string, status models.RunStatus) error {
	_, err := r.db.Exec(ctx,
		`UPDATE pipeline_state SET status = $1 WHERE run_guid = $2`,
		status, runGUID,
	)
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	return nil
}

// ResetPipelineData wipes all transactional pipeline data.
func (r *RunRepository) ResetPipelineData(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `CALL sp_reset_pipeline_data()`); err != nil {
		return fmt.Errorf("resetting pipeline data: %w", err)
	}
	return nil
}
