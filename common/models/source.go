package models

import "encoding/json"

// Discovery modes for a sitemap source.
const (
	DiscoveryModeSitemap = "sitemap"
	DiscoveryModeSeed    = "seed"
)

// SitemapSource is a per-source configuration row. The policy blob is parsed
// once at the staging boundary into a policy.Policy.
type SitemapSource struct {
	ID            int64           `json:"id"`
	IndexURL      string          `json:"index_url"`
	Policy        json.RawMessage `json:"policy"`
	DiscoveryMode string          `json:"discovery_mode"`
	Priority      int             `json:"priority"`
	IsActive      bool            `json:"is_active"`
}
