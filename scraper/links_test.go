package scraper

import (
	"testing"

	"github.com/pagemill/crawl-ingest-service/transform"

	"github.com/stretchr/testify/assert"
)

func TestBaseDomain(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://example.com/docs", "example.com"},
		{"https://docs.example.com/docs", "example.com"},
		{"https://a.b.example.com/", "example.com"},
		{"https://EXAMPLE.COM/", "example.com"},
		{"https://localhost:8080/", "localhost"},
		{"://bad", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, BaseDomain(tc.rawURL), tc.rawURL)
	}
}

func TestSplitPatterns(t *testing.T) {
	assert.Nil(t, SplitPatterns(""))
	assert.Equal(t, []string{"/docs/", "/api/"}, SplitPatterns("/docs/\n\n  /api/  \n"))
}

func link(href string) transform.Link {
	return transform.Link{Href: href, AnchorText: "x"}
}

func TestDiscoverLinksSameBaseDomainOnly(t *testing.T) {
	links := []transform.Link{
		link("https://docs.example.com/guide/setup"),
		link("https://example.com/pricing"),
		link("https://other.com/docs"),
	}

	got := DiscoverLinks(links, "https://docs.example.com/guide", nil, nil)
	assert.Equal(t, []string{
		"https://docs.example.com/guide/setup",
		"https://example.com/pricing",
	}, got)
}

func TestDiscoverLinksLanguageExclusions(t *testing.T) {
	links := []transform.Link{
		link("https://example.com/de/guide"),
		link("https://example.com/de-DE/guide"),
		link("https://example.com/FR/guide"),
		link("https://example.com/guide/dessert"),
	}

	got := DiscoverLinks(links, "https://example.com/", []string{"de", "fr"}, nil)
	// "dessert" contains "de" but not as a path segment.
	assert.Equal(t, []string{"https://example.com/guide/dessert"}, got)
}

func TestDiscoverLinksContextualPatterns(t *testing.T) {
	links := []transform.Link{
		link("https://example.com/docs/intro"),
		link("https://example.com/blog/post"),
	}

	got := DiscoverLinks(links, "https://example.com/", nil, []string{"/docs/"})
	assert.Equal(t, []string{"https://example.com/docs/intro"}, got)

	// No patterns means no restriction.
	got = DiscoverLinks(links, "https://example.com/", nil, nil)
	assert.Len(t, got, 2)
}

func TestDiscoverLinksDeduplicates(t *testing.T) {
	links := []transform.Link{
		link("https://example.com/a"),
		link("https://example.com/a"),
	}

	got := DiscoverLinks(links, "https://example.com/", nil, nil)
	assert.Equal(t, []string{"https://example.com/a"}, got)
}
