// Package transform turns raw page HTML into the structured artifacts the
// ingest pipeline persists: ordered content blocks, normalized outbound
// links, overlapping token-window chunks, and per-chunk version mentions.
// Everything here is pure and deterministic; callers own all I/O.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"
)

// Config controls the chunking window. Zero values fall back to the
// defaults used across the pipeline.
type Config struct {
	ChunkSizeTokens int
	OverlapFraction float64
}

const (
	DefaultChunkSizeTokens = 800
	DefaultOverlapFraction = 0.5
)

func (c Config) withDefaults() Config {
	if c.ChunkSizeTokens <= 0 {
		c.ChunkSizeTokens = DefaultChunkSizeTokens
	}
	if c.OverlapFraction <= 0 || c.OverlapFraction >= 1 {
		c.OverlapFraction = DefaultOverlapFraction
	}
	return c
}

// Result is the full structured output for one page.
type Result struct {
	Title        string
	LastModified mo.Option[time.Time]
	Fingerprint  string
	Blocks       []Block
	Links        []Link
	Chunks       []Chunk
	Versions     []VersionHit
}

// Process runs every sub-stage over one HTML document. pageURL anchors
// relative link resolution.
func Process(html, pageURL string, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	doc, err := parseDoc(html)
	if err != nil {
		return Result{}, fmt.Errorf("parsing html: %w", err)
	}

	blocks := Blocks(doc)
	chunks := BuildChunks(blocks, cfg.ChunkSizeTokens, cfg.OverlapFraction)

	links, err := ExtractLinks(html, pageURL)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Title:        Title(doc),
		LastModified: ModifiedTime(doc),
		Fingerprint:  Fingerprint(html),
		Blocks:       blocks,
		Links:        links,
		Chunks:       chunks,
		Versions:     ExtractVersions(chunks),
	}, nil
}

func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Title returns the trimmed <title> text, empty when absent.
func Title(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// ModifiedTime reads the article:modified_time meta tag. Absent or
// malformed values yield None.
func ModifiedTime(doc *goquery.Document) mo.Option[time.Time] {
	content, ok := doc.Find(`meta[property="article:modified_time"]`).First().Attr("content")
	if !ok {
		return mo.None[time.Time]()
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(content))
	if err != nil {
		return mo.None[time.Time]()
	}
	return mo.Some(ts)
}

var (
	spacesRe   = regexp.MustCompile(`[ \t]+`)
	newlinesRe = regexp.MustCompile(`\n{2,}`)
)

// Fingerprint hashes the page's visible text with scripts, styles and
// navigation chrome removed, so cosmetic markup churn does not count as a
// content change.
func Fingerprint(html string) string {
	doc, err := parseDoc(html)
	if err != nil {
		// Unparseable input still gets a stable fingerprint.
		sum := sha256.Sum256([]byte(html))
		return hex.EncodeToString(sum[:])
	}

	doc.Find("script, style, nav, footer, [role=navigation]").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	text := strings.Join(lines, "\n")
	text = spacesRe.ReplaceAllString(text, " ")
	text = newlinesRe.ReplaceAllString(text, "\n")

	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Markdown renders the HTML body as markdown for the object-store rendition
// kept beside the raw capture.
func Markdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return out, nil
}
