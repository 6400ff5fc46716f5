package services

import (
	"context"
	"fmt"

	"github.com/pagemill/crawl-ingest-service/sitemap"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CandidateRepository is the PostgreSQL implementation of CandidateService.
type CandidateRepository struct {
	db *pgxpool.Pool
}

// NewCandidateRepository creates a new PostgreSQL CandidateRepository.
func NewCandidateRepository(db *pgxpool.Pool) CandidateService {
	return &CandidateRepository{db: db}
}

// ReplaceAll truncates the staging table and loads the given candidates.
// The table holds one staging pass at a time.
func (r *CandidateRepository) ReplaceAll(ctx context.Context, candidates []sitemap.Candidate) (int64, error) {
	if _, err := r.db.Exec(ctx, `TRUNCATE TABLE urls_candidate_load`); err != nil {
		return 0, fmt.Errorf("truncating candidate staging: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(
			`INSERT INTO urls_candidate_load (url, lastmod, sitemap_id, source)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (url) DO NOTHING`,
			c.URL, c.LastMod.ToPointer(), c.SourceID, string(c.Origin),
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range candidates {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("staging candidates: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("staging candidates: %w", err)
	}

	var staged int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM urls_candidate_load`).Scan(&staged); err != nil {
		return 0, fmt.Errorf("counting staged candidates: %w", err)
	}
	return staged, nil
}
