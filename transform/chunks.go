package transform

import (
	"strings"

	"github.com/samber/lo"
)

// Chunk is one overlapping token window over the block sequence.
type Chunk struct {
	Index        int      `json:"chunk_index"`
	StartOrd     int      `json:"start_block_ord"`
	EndOrd       int      `json:"end_block_ord"`
	Caption      string   `json:"caption,omitempty"`
	Code         string   `json:"code,omitempty"`
	Text         string   `json:"chunk_text"`
	Headings     []string `json:"headings"`
	IsCode       bool     `json:"is_code"`
	ApproxTokens int      `json:"approx_tokens"`
	ChunkSize    int      `json:"chunk_size"`
	ChunkOverlap float64  `json:"chunk_overlap"`
	DominantType string   `json:"dominant_type"`
}

const (
	DominantProse = "prose-heavy"
	DominantCode  = "code-heavy"
)

// codeHeavyRatio: a chunk counts as code when code tokens reach this share
// of the chunk total.
const codeHeavyRatio = 0.4

// tokenEstimate approximates token count as the whitespace-delimited word
// count. Cheap and close enough for window sizing.
func tokenEstimate(text string) int {
	return len(strings.Fields(text))
}

// BuildChunks slides an overlapping window over the blocks. The window
// grows until it holds at least chunkSizeTokens; a code block sitting right
// after the boundary is pulled in whole rather than split. The start then
// advances by blocks summing to at least int(size*(1-overlap)) tokens,
// always at least one block.
func BuildChunks(blocks []Block, chunkSizeTokens int, overlapFraction float64) []Chunk {
	if len(blocks) == 0 {
		return nil
	}

	blockTokens := make([]int, len(blocks))
	for i, b := range blocks {
		text := b.Prose
		if b.IsCode {
			text = b.Code
		}
		blockTokens[i] = tokenEstimate(text)
	}

	strideTarget := int(float64(chunkSizeTokens) * (1.0 - overlapFraction))

	var chunks []Chunk
	start := 0

	for start < len(blocks) {
		windowTokens := 0
		end := start
		for end < len(blocks) && windowTokens < chunkSizeTokens {
			windowTokens += blockTokens[end]
			end++
		}

		// Never split a code block across chunks.
		if end < len(blocks) && blocks[end].IsCode {
			end++
		}

		window := blocks[start:end]
		chunks = append(chunks, assembleChunk(len(chunks), window, chunkSizeTokens, overlapFraction))

		strideTokens := 0
		next := start
		for next < end && strideTokens < strideTarget {
			strideTokens += blockTokens[next]
			next++
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

func assembleChunk(index int, window []Block, size int, overlap float64) Chunk {
	caption := window[0].Caption
	for i := len(window) - 1; i >= 0; i-- {
		if isHeading(window[i].Type) {
			caption = window[i].Prose
			break
		}
	}

	var textParts, codeParts, headings []string
	for _, b := range window {
		headings = append(headings, b.HeadingPath...)
		if b.IsCode && b.Code != "" {
			codeParts = append(codeParts, b.Code)
		}
		if part := lo.Ternary(b.IsCode, b.Code, b.Prose); part != "" {
			textParts = append(textParts, part)
		}
	}

	text := strings.Join(textParts, "\n\n")
	code := strings.Join(codeParts, "\n\n")
	total := tokenEstimate(text)

	codeHeavy := total > 0 && float64(tokenEstimate(code)) >= codeHeavyRatio*float64(total)
	dominant := lo.Ternary(codeHeavy, DominantCode, DominantProse)

	return Chunk{
		Index:        index,
		StartOrd:     window[0].Ord,
		EndOrd:       window[len(window)-1].Ord,
		Caption:      caption,
		Code:         code,
		Text:         text,
		Headings:     lo.Uniq(headings),
		IsCode:       codeHeavy,
		ApproxTokens: total,
		ChunkSize:    size,
		ChunkOverlap: overlap,
		DominantType: dominant,
	}
}

func isHeading(blockType string) bool {
	return blockType == "h1" || blockType == "h2" || blockType == "h3"
}
