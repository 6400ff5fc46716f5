package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PageRepository is the PostgreSQL implementation of PageService.
type PageRepository struct {
	db *pgxpool.Pool
}

// NewPageRepository creates a new PostgreSQL PageRepository.
func NewPageRepository(db *pgxpool.Pool) PageService {
	return &PageRepository{db: db}
}

// ContentHash returns the stored fingerprint for a URL.
func (r *PageRepository) ContentHash(ctx context.Context, url string) (string, bool, error) {
	var hash pgtype.Text
	err := r.db.QueryRow(ctx,
		`SELECT content_hash FROM pages WHERE url = $1`, url,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("selecting content hash: %w", err)
	}
	return hash.String, hash.Valid, nil
}

// Upsert creates or refreshes a page via fn_upsert_page.
func (r *PageRepository) Upsert(ctx context.Context, params UpsertPageParams) (int64, bool, error) {
	var pageID int64
	var isChanged bool
	err := r.db.QueryRow(ctx,
		`SELECT page_id, is_changed
		   FROM fn_upsert_page($1, $2, $3, $4, $5, $6)`,
		params.URL, params.Title, params.ContentHash, params.HTTPStatus,
		params.CrawledAt, params.UpdatedAt,
	).Scan(&pageID, &isChanged)
	if err != nil {
		return 0, false, fmt.Errorf("upserting page: %w", err)
	}
	return pageID, isChanged, nil
}

// ClearTouched resets touched_this_run TRUE rows back to NULL. Rows already
// NULL are left alone so the statement stays cheap.
func (r *PageRepository) ClearTouched(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE pages
		    SET touched_this_run = NULL
		  WHERE touched_this_run IS TRUE`,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing touched flags: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertNewFromCandidates creates page rows for staged URLs not yet in the
// catalog. New pages always need a first scrape.
func (r *PageRepository) InsertNewFromCandidates(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO pages
		        (url, source, sitemap_source_id, needs_update, touched_this_run, created_at, updated_at)
		 SELECT c.url,
		        COALESCE(c.source, 'sitemap'),
		        c.sitemap_id,
		        TRUE,
		        TRUE,
		        now(),
		        COALESCE(c.lastmod, now())
		   FROM urls_candidate_load c
		   LEFT JOIN pages p ON p.url = c.url
		  WHERE p.url IS NULL`,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting new pages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FlagStaleFromCandidates marks known pages stale when they have never been
// updated or the candidate's lastmod is strictly newer.
func (r *PageRepository) FlagStaleFromCandidates(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE pages p
		    SET needs_update = TRUE,
		        touched_this_run = TRUE
		   FROM urls_candidate_load c
		  WHERE c.url = p.url
		    AND (p.updated_at IS NULL
		         OR (c.lastmod IS NOT NULL AND c.lastmod > p.updated_at))`,
	)
	if err != nil {
		return 0, fmt.Errorf("flagging stale pages: %w", err)
	}
	return tag.RowsAffected(), nil
}
