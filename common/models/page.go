package models

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Page is the canonical-URL keyed catalog row.
type Page struct {
	ID             int64              `json:"id"`
	URL            string             `json:"url"`
	Title          pgtype.Text        `json:"title"`
	ContentHash    pgtype.Text        `json:"content_hash"`
	HTTPStatus     pgtype.Int4        `json:"http_status"`
	Source         string             `json:"source"`
	NeedsUpdate    bool               `json:"needs_update"`
	TouchedThisRun pgtype.Bool        `json:"touched_this_run"`
	CrawledAt      pgtype.Timestamptz `json:"crawled_at"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
	CreatedAt      time.Time          `json:"created_at"`
}
