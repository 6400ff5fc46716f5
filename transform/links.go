package transform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is one normalized outbound anchor.
type Link struct {
	Href       string `json:"href"`
	AnchorText string `json:"anchor_text"`
}

const anchorTextLimit = 1024

// ExtractLinks collects the page's anchors as absolute http(s) URLs.
// Normalization: resolve against the page URL, drop the fragment, strip one
// trailing slash unless the path is exactly "/". First occurrence of a
// normalized URL wins.
func ExtractLinks(html, pageURL string) ([]Link, error) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url %q: %w", pageURL, err)
	}

	var out []Link
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}

		normalized, ok := NormalizeLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}

		text := collapseText(sel)
		if len(text) > anchorTextLimit {
			text = text[:anchorTextLimit]
		}
		out = append(out, Link{Href: normalized, AnchorText: text})
	})

	return out, nil
}

// NormalizeLink resolves href against base and applies the link
// normalization rules. ok is false for unparseable or non-http(s) targets.
func NormalizeLink(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""

	normalized := abs.String()
	if strings.HasSuffix(normalized, "/") && abs.Path != "/" {
		normalized = normalized[:len(normalized)-1]
	}
	return normalized, true
}
