package scraper

import (
	"net/url"
	"strings"

	"github.com/pagemill/crawl-ingest-service/transform"
)

// BaseDomain reduces a URL's hostname to its last two DNS labels, so
// docs.example.com and www.example.com count as the same site. Hostnames
// with two labels or fewer are returned as-is.
func BaseDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// SplitPatterns parses an operator-supplied newline-separated pattern list.
func SplitPatterns(raw string) []string {
	var patterns []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}

// DiscoverLinks filters a page's extracted links down to the ones worth
// queueing: same base domain as the page, not a foreign-language variant,
// and matching at least one contextual pattern when patterns are set.
func DiscoverLinks(links []transform.Link, pageURL string, langExclusions, contextualPatterns []string) []string {
	base := BaseDomain(pageURL)
	if base == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		parsed, err := url.Parse(l.Href)
		if err != nil {
			continue
		}
		if BaseDomain(l.Href) != base {
			continue
		}
		if hasLanguageSegment(parsed.Path, langExclusions) {
			continue
		}
		if len(contextualPatterns) > 0 && !matchesAny(l.Href, contextualPatterns) {
			continue
		}
		if _, dup := seen[l.Href]; dup {
			continue
		}
		seen[l.Href] = struct{}{}
		out = append(out, l.Href)
	}
	return out
}

// hasLanguageSegment reports whether the path contains a locale token as a
// path segment ("/de/...") or segment prefix ("/de-DE/...").
func hasLanguageSegment(path string, langExclusions []string) bool {
	lowered := strings.ToLower(path)
	for _, lang := range langExclusions {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if strings.Contains(lowered, "/"+lang+"/") || strings.Contains(lowered, "/"+lang+"-") {
			return true
		}
	}
	return false
}

func matchesAny(href string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(href, p) {
			return true
		}
	}
	return false
}
