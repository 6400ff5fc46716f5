package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessEndToEnd(t *testing.T) {
	html := `<html><head><title>Guide | Docs</title></head><body>
		<h1>Guide</h1>
		<p>Intro text</p>
		<pre>code()</pre>
		<a href="/next">Next page</a>
	</body></html>`

	res, err := Process(html, "https://example.com/guide", Config{ChunkSizeTokens: 800, OverlapFraction: 0.5})
	require.NoError(t, err)

	assert.Equal(t, "Guide | Docs", res.Title)
	assert.Len(t, res.Fingerprint, 64)

	require.Len(t, res.Blocks, 3)
	for _, b := range res.Blocks {
		assert.Equal(t, []string{"Guide"}, b.HeadingPath)
	}
	assert.True(t, res.Blocks[2].IsCode)

	// Everything fits one window. One code token of four keeps the chunk
	// below the code-share threshold.
	require.Len(t, res.Chunks, 1)
	c := res.Chunks[0]
	assert.False(t, c.IsCode)
	assert.Equal(t, DominantProse, c.DominantType)
	assert.Equal(t, 0, c.StartOrd)
	assert.Equal(t, 2, c.EndOrd)
	assert.Equal(t, "Guide", c.Caption)

	require.Len(t, res.Links, 1)
	assert.Equal(t, "https://example.com/next", res.Links[0].Href)
	assert.Equal(t, "Next page", res.Links[0].AnchorText)
}

func TestProcessDeterministic(t *testing.T) {
	html := `<html><body><h1>A</h1><p>some words here</p><pre>x = 1</pre><p>more words</p></body></html>`

	a, err := Process(html, "https://example.com/", Config{})
	require.NoError(t, err)
	b, err := Process(html, "https://example.com/", Config{})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprintIgnoresChrome(t *testing.T) {
	content := `<h1>Title</h1><p>The actual body text.</p>`

	plain := "<html><body>" + content + "</body></html>"
	dressed := `<html><head><script>analytics()</script><style>p{color:red}</style></head><body>` +
		`<nav><a href="/">Home</a></nav>` + content + `<footer>contact us</footer></body></html>`

	assert.Equal(t, Fingerprint(plain), Fingerprint(dressed))
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := Fingerprint("<html><body><p>version one</p></body></html>")
	b := Fingerprint("<html><body><p>version two</p></body></html>")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint("<html><body><p>version one</p></body></html>"))
}

func TestModifiedTime(t *testing.T) {
	html := `<html><head><meta property="article:modified_time" content="2025-09-27T20:00:00Z"></head><body></body></html>`
	doc, err := parseDoc(html)
	require.NoError(t, err)

	ts, ok := ModifiedTime(doc).Get()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 9, 27, 20, 0, 0, 0, time.UTC), ts)

	doc, err = parseDoc(`<html><head><meta property="article:modified_time" content="not a date"></head></html>`)
	require.NoError(t, err)
	assert.True(t, ModifiedTime(doc).IsAbsent())

	doc, err = parseDoc(`<html><head></head></html>`)
	require.NoError(t, err)
	assert.True(t, ModifiedTime(doc).IsAbsent())
}

func TestMarkdown(t *testing.T) {
	out, err := Markdown(`<html><body><h1>Title</h1><p>Body with <strong>bold</strong>.</p></body></html>`)
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "**bold**")
}
