// Package sitemap discovers candidate page URLs for a source by walking its
// sitemap index one level deep. Nested indexes inside sub-sitemaps are not
// recursed; deeper discovery is left to the scrape workers' link following.
package sitemap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/models"
	"github.com/pagemill/crawl-ingest-service/policy"

	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// Origin tags how a candidate was discovered.
type Origin string

const (
	OriginSitemap Origin = "sitemap"
	OriginOrganic Origin = "organic"
	OriginSeed    Origin = "seed"
)

// Candidate is a staged, not-yet-reconciled URL.
type Candidate struct {
	URL      string
	LastMod  mo.Option[time.Time]
	SourceID int64
	Origin   Origin
}

// SourceReport captures per-source discovery diagnostics for the trigger
// response.
type SourceReport struct {
	SourceID       int64    `json:"sitemap_id"`
	IndexURL       string   `json:"index_url"`
	DiscoveryMode  string   `json:"discovery_mode"`
	TreatedAs      string   `json:"treated_as,omitempty"`
	Error          string   `json:"error,omitempty"`
	SubmapsTotal   int      `json:"submaps_total,omitempty"`
	SubmapsKept    []string `json:"submaps_kept,omitempty"`
	SubmapsSkipped int      `json:"submaps_skipped,omitempty"`
	Accepted       int      `json:"accepted,omitempty"`
	AcceptedSample []string `json:"accepted_sample,omitempty"`
	SeedAccepted   *bool    `json:"seed_accepted,omitempty"`
}

const sampleLimit = 10

// Limits caps how much of one source's sitemap tree is visited.
type Limits struct {
	SubSitemaps        int
	PagesPerSubSitemap int
}

// Discoverer fetches and filters one source's sitemap tree under a shared
// wall-clock deadline. The deadline is cooperative: it is checked between
// fetches, never mid-fetch.
type Discoverer struct {
	client   *http.Client
	limits   Limits
	deadline time.Time
}

// NewDiscoverer creates a Discoverer. The deadline bounds all sources of one
// staging pass collectively.
func NewDiscoverer(client *http.Client, limits Limits, deadline time.Time) *Discoverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Discoverer{client: client, limits: limits, deadline: deadline}
}

// Expired reports whether the shared time budget has run out.
func (d *Discoverer) Expired() bool {
	return time.Now().After(d.deadline)
}

// DiscoverSource walks one source and returns the candidates that pass the
// policy. An unreachable or malformed root is treated as an organic leaf:
// the operator most likely configured a content page, not a sitemap.
func (d *Discoverer) DiscoverSource(ctx context.Context, src models.SitemapSource, pol policy.Policy) ([]Candidate, SourceReport) {
	report := SourceReport{
		SourceID:      src.ID,
		IndexURL:      src.IndexURL,
		DiscoveryMode: src.DiscoveryMode,
	}

	body, err := d.fetch(ctx, src.IndexURL)
	if err != nil {
		log.Warn().Err(err).Str("url", src.IndexURL).Msg("Index fetch failed; treating root as organic leaf")
		report.Error = err.Error()
		report.TreatedAs = "organic_leaf"
		return []Candidate{{URL: src.IndexURL, SourceID: src.ID, Origin: OriginOrganic}}, report
	}

	if submaps := ParseIndex(body); len(submaps) > 0 {
		return d.walkIndex(ctx, src, pol, submaps, &report), report
	}

	if entries := ParseURLSet(body); len(entries) > 0 {
		candidates := d.acceptEntries(src, pol, entries, &report)
		report.TreatedAs = "direct_leaf"
		return candidates, report
	}

	// Neither index nor urlset: honor operator intent and crawl it directly.
	report.TreatedAs = "organic_leaf_no_xml"
	return []Candidate{{URL: src.IndexURL, SourceID: src.ID, Origin: OriginOrganic}}, report
}

// walkIndex filters every sub-sitemap URL before applying the visit cap.
// Capping first could silently drop policy-admissible sitemaps that sort
// late in the index.
func (d *Discoverer) walkIndex(ctx context.Context, src models.SitemapSource, pol policy.Policy, submaps []string, report *SourceReport) []Candidate {
	report.SubmapsTotal = len(submaps)

	var kept []string
	for _, sm := range submaps {
		if pol.Allow(sm) {
			kept = append(kept, sm)
		} else {
			report.SubmapsSkipped++
		}
	}
	if len(kept) > d.limits.SubSitemaps {
		kept = kept[:d.limits.SubSitemaps]
	}
	report.SubmapsKept = kept

	log.Info().
		Int64("source", src.ID).
		Int("submaps", report.SubmapsTotal).
		Int("kept", len(kept)).
		Msg("Filtered sub-sitemaps")

	var out []Candidate
	for _, smURL := range kept {
		if d.Expired() {
			log.Warn().Int64("source", src.ID).Msg("Time budget hit in sub-sitemap loop")
			break
		}

		body, err := d.fetch(ctx, smURL)
		if err != nil {
			log.Warn().Err(err).Str("url", smURL).Msg("Sub-sitemap fetch error")
			continue
		}

		entries := ParseURLSet(body)
		if len(entries) == 0 {
			// Nested index; recursion is intentionally not performed.
			continue
		}

		out = append(out, d.acceptEntries(src, pol, entries, report)...)
	}
	return out
}

// acceptEntries applies the page cap and the policy to leaf entries.
func (d *Discoverer) acceptEntries(src models.SitemapSource, pol policy.Policy, entries []Entry, report *SourceReport) []Candidate {
	if len(entries) > d.limits.PagesPerSubSitemap {
		entries = entries[:d.limits.PagesPerSubSitemap]
	}

	var out []Candidate
	for _, e := range entries {
		if !pol.Allow(e.Loc) {
			continue
		}
		out = append(out, Candidate{
			URL:      e.Loc,
			LastMod:  e.LastMod,
			SourceID: src.ID,
			Origin:   OriginSitemap,
		})
		report.Accepted++
		if len(report.AcceptedSample) < sampleLimit {
			report.AcceptedSample = append(report.AcceptedSample, e.Loc)
		}
	}
	return out
}

func (d *Discoverer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
