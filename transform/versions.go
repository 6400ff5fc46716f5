package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VersionHit is the single best version mention found in one chunk.
// Major/Minor/Patch are set for semver and api hits, Year/Month for
// calendar hits; the unused family's fields stay nil.
type VersionHit struct {
	ChunkIndex int    `json:"chunk_index"`
	Product    string `json:"product"`
	VersionStr string `json:"version_str"`
	Major      *int   `json:"version_major,omitempty"`
	Minor      *int   `json:"version_minor,omitempty"`
	Patch      *int   `json:"version_patch,omitempty"`
	Year       *int   `json:"version_year,omitempty"`
	Month      *int   `json:"version_month,omitempty"`

	Score      int     `json:"version_score"`
	Confidence float64 `json:"confidence"`
}

const (
	confidenceSemver    = 0.9
	confidenceAPI       = 0.85
	confidenceYearMonth = 0.8
)

var (
	productRe   = regexp.MustCompile(`(?i)\b(creator|deluge|flow|crm|analytics)\b`)
	crmAPIRe    = regexp.MustCompile(`(?i)^\s*api\b`)
	semverRe    = regexp.MustCompile(`(?i)\bv(?:ersion)?\s*(\d+(?:\.\d+){0,2})\b`)
	apiRe       = regexp.MustCompile(`(?i)\bapi\s*v?(\d+(?:\.\d+)*)\b`)
	yearMonthRe = regexp.MustCompile(`\b(20\d{2})(?:\.(\d{1,2}))?\b`)
)

// ExtractVersions scans each chunk's caption and text for product and
// version mentions. At most one hit per chunk survives: the highest score
// across all pattern families, first match winning ties (families scanned
// in order semver, api, year-month).
func ExtractVersions(chunks []Chunk) []VersionHit {
	var hits []VersionHit
	for _, c := range chunks {
		text := c.Caption + " " + c.Text
		if hit, ok := bestVersion(c.Index, detectProduct(text), text); ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

// detectProduct finds the first product mention. "crm" immediately followed
// by "api" names the API surface, not the product, and is skipped.
func detectProduct(text string) string {
	for _, loc := range productRe.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[loc[2]:loc[3]])
		if name == "crm" && crmAPIRe.MatchString(text[loc[3]:]) {
			continue
		}
		return name
	}
	return "unknown"
}

func bestVersion(chunkIndex int, product, text string) (VersionHit, bool) {
	var best VersionHit
	found := false

	consider := func(hit VersionHit) {
		if !found || hit.Score > best.Score {
			best = hit
			found = true
		}
	}

	for _, m := range semverRe.FindAllStringSubmatch(text, -1) {
		major, minor, patch := splitSemver(m[1])
		consider(VersionHit{
			ChunkIndex: chunkIndex,
			Product:    product,
			VersionStr: "v" + m[1],
			Major:      &major,
			Minor:      &minor,
			Patch:      &patch,
			Score:      major*10000 + minor*100 + patch,
			Confidence: confidenceSemver,
		})
	}

	for _, m := range apiRe.FindAllStringSubmatch(text, -1) {
		major, _, _ := splitSemver(m[1])
		minor, patch := 0, 0
		consider(VersionHit{
			ChunkIndex: chunkIndex,
			Product:    product,
			VersionStr: "api v" + m[1],
			Major:      &major,
			Minor:      &minor,
			Patch:      &patch,
			Score:      major * 10000,
			Confidence: confidenceAPI,
		})
	}

	for _, m := range yearMonthRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		month := 0
		if m[2] != "" {
			month, _ = strconv.Atoi(m[2])
		}
		hit := VersionHit{
			ChunkIndex: chunkIndex,
			Product:    product,
			VersionStr: strconv.Itoa(year),
			Year:       &year,
			Score:      year*100 + month,
			Confidence: confidenceYearMonth,
		}
		if month > 0 {
			mv := month
			hit.Month = &mv
			hit.VersionStr = fmt.Sprintf("%d.%02d", year, month)
		}
		consider(hit)
	}

	return best, found
}

func splitSemver(raw string) (major, minor, patch int) {
	parts := strings.Split(raw, ".")
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		patch, _ = strconv.Atoi(parts[2])
	}
	return major, minor, patch
}
