package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWith(index int, caption, text string) Chunk {
	return Chunk{Index: index, Caption: caption, Text: text}
}

func TestExtractVersionsHighestScoreWins(t *testing.T) {
	// "v2.1" scores 20100 at confidence 0.9; "API 3" scores 30000 at
	// 0.85. Score decides, not confidence.
	hits := ExtractVersions([]Chunk{
		chunkWith(0, "Release notes", "Flow v2.1 now targets API 3 endpoints"),
	})

	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, 0, h.ChunkIndex)
	assert.Equal(t, "flow", h.Product)
	assert.Equal(t, "api v3", h.VersionStr)
	assert.Equal(t, 30000, h.Score)
	assert.Equal(t, 0.85, h.Confidence)
	require.NotNil(t, h.Major)
	assert.Equal(t, 3, *h.Major)
}

func TestExtractVersionsSemver(t *testing.T) {
	hits := ExtractVersions([]Chunk{
		chunkWith(0, "", "creator version 2.1.3 released"),
	})

	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, "creator", h.Product)
	assert.Equal(t, "v2.1.3", h.VersionStr)
	assert.Equal(t, 2*10000+1*100+3, h.Score)
	assert.Equal(t, 0.9, h.Confidence)
	assert.Equal(t, 2, *h.Major)
	assert.Equal(t, 1, *h.Minor)
	assert.Equal(t, 3, *h.Patch)
}

func TestExtractVersionsYearMonth(t *testing.T) {
	hits := ExtractVersions([]Chunk{
		chunkWith(0, "", "analytics release 2025.09 rollout"),
	})

	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, "analytics", h.Product)
	assert.Equal(t, "2025.09", h.VersionStr)
	assert.Equal(t, 2025*100+9, h.Score)
	assert.Equal(t, 0.8, h.Confidence)
	require.NotNil(t, h.Year)
	assert.Equal(t, 2025, *h.Year)
	require.NotNil(t, h.Month)
	assert.Equal(t, 9, *h.Month)
	assert.Nil(t, h.Major)
}

func TestExtractVersionsBareYear(t *testing.T) {
	hits := ExtractVersions([]Chunk{chunkWith(0, "", "deluge changes in 2024")})

	require.Len(t, hits, 1)
	assert.Equal(t, "2024", hits[0].VersionStr)
	assert.Equal(t, 202400, hits[0].Score)
	assert.Nil(t, hits[0].Month)
}

func TestExtractVersionsTieFirstFamilyWins(t *testing.T) {
	// "v3" and "api v3" both score 30000; the semver family is scanned
	// first, so it keeps the hit.
	hits := ExtractVersions([]Chunk{chunkWith(0, "", "flow v3 and api v3")})

	require.Len(t, hits, 1)
	assert.Equal(t, "v3", hits[0].VersionStr)
	assert.Equal(t, 0.9, hits[0].Confidence)
}

func TestExtractVersionsNoMatchNoHit(t *testing.T) {
	hits := ExtractVersions([]Chunk{
		chunkWith(0, "", "nothing versioned here"),
		chunkWith(1, "", "creator v4 mentioned"),
	})

	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].ChunkIndex)
}

func TestExtractVersionsCaptionIncluded(t *testing.T) {
	hits := ExtractVersions([]Chunk{chunkWith(0, "Creator v5 notes", "body without versions")})

	require.Len(t, hits, 1)
	assert.Equal(t, "creator", hits[0].Product)
	assert.Equal(t, "v5", hits[0].VersionStr)
}

func TestDetectProduct(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"the Deluge scripting guide", "deluge"},
		{"CRM records overview", "crm"},
		{"crm api reference", "unknown"},
		{"crm  API reference", "unknown"},
		{"crm api docs for analytics", "analytics"},
		{"no products here", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, detectProduct(tt.text), tt.text)
	}
}
