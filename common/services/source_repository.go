package services

import (
	"context"
	"fmt"

	"github.com/pagemill/crawl-ingest-service/common/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SourceRepository is the PostgreSQL implementation of SourceService.
type SourceRepository struct {
	db *pgxpool.Pool
}

// NewSourceRepository creates a new PostgreSQL SourceRepository.
func NewSourceRepository(db *pgxpool.Pool) SourceService {
	return &SourceRepository{db: db}
}

// GetActive returns active sources ordered by priority desc, id asc.
func (r *SourceRepository) GetActive(ctx context.Context) ([]models.SitemapSource, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, index_url, policy, discovery_mode, priority, is_active
		   FROM sitemap_sources
		  WHERE is_active = TRUE
		  ORDER BY priority DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting active sources: %w", err)
	}
	defer rows.Close()

	var sources []models.SitemapSource
	for rows.Next() {
		var s models.SitemapSource
		if err := rows.Scan(&s.ID, &s.IndexURL, &s.Policy, &s.DiscoveryMode, &s.Priority, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// RefreshPolicies runs the opaque policy refresh procedure. Idempotent.
func (r *SourceRepository) RefreshPolicies(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `CALL sp_refresh_all_sitemap_policies()`); err != nil {
		return fmt.Errorf("refreshing sitemap policies: %w", err)
	}
	return nil
}
