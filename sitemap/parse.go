package sitemap

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/samber/mo"
)

// sitemapIndex is the <sitemapindex> document listing sub-sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// urlSet is the <urlset> document listing leaf page URLs.
type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// Entry is one leaf URL from a urlset, with its optional lastmod.
type Entry struct {
	Loc     string
	LastMod mo.Option[time.Time]
}

// ParseIndex extracts sub-sitemap URLs from a sitemap index document.
// Returns nil for anything that does not parse as an index.
func ParseIndex(body []byte) []string {
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil
	}

	var out []string
	for _, sm := range idx.Sitemaps {
		if loc := strings.TrimSpace(sm.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// ParseURLSet extracts leaf entries from a urlset document. Returns nil for
// anything that does not parse as a urlset.
func ParseURLSet(body []byte) []Entry {
	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil
	}

	var out []Entry
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		out = append(out, Entry{
			Loc:     loc,
			LastMod: parseLastMod(u.LastMod),
		})
	}
	return out
}

// parseLastMod accepts RFC3339 timestamps and bare dates; anything else is
// treated as absent rather than an error.
func parseLastMod(raw string) mo.Option[time.Time] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return mo.None[time.Time]()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return mo.Some(ts)
		}
	}
	return mo.None[time.Time]()
}
