package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTMLStripsBoilerplate(t *testing.T) {
	p := &Processor{chunkSize: 1000}

	html := `<html><head><title>Doc</title><style>body{}</style></head>
	<body>
		<nav>navigation</nav>
		<script>alert("x")</script>
		<p>The    actual   content.</p>
		<footer>footer text</footer>
	</body></html>`

	text := p.cleanHTML(html)

	assert.Equal(t, "The actual content.", text)
	assert.NotContains(t, text, "navigation")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "footer text")
}

func TestExtractTitle(t *testing.T) {
	p := &Processor{chunkSize: 1000}

	assert.Equal(t, "Page Title", p.extractTitle(`<html><head><title>Page Title</title></head><body></body></html>`))
	assert.Equal(t, "Heading", p.extractTitle(`<html><body><h1>Heading</h1></body></html>`))
	assert.Equal(t, "Untitled", p.extractTitle(`<html><body><p>no title</p></body></html>`))
}

func TestExtractPublishedAt(t *testing.T) {
	p := &Processor{chunkSize: 1000}

	withMeta := `<html><head><meta property="article:published_time" content="2025-06-01T10:00:00Z"></head><body></body></html>`
	assert.Equal(t, "2025-06-01T10:00:00Z", p.extractPublishedAt(withMeta))

	withTime := `<html><body><time datetime="2025-03-15">March 15</time></body></html>`
	assert.Equal(t, "2025-03-15", p.extractPublishedAt(withTime))

	assert.Equal(t, "", p.extractPublishedAt(`<html><body><p>undated</p></body></html>`))
}

func TestChunkTextGroupsSentences(t *testing.T) {
	p := &Processor{chunkSize: 60}

	text := "The first sentence is here. The second sentence follows it. The third sentence closes the document."
	chunks := p.chunkText(text)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}

	// Every sentence must survive chunking.
	joined := strings.Join(chunks, " ")
	assert.Contains(t, joined, "The first sentence is here.")
	assert.Contains(t, joined, "The second sentence follows it.")
	assert.Contains(t, joined, "The third sentence closes the document.")
}

func TestChunkTextOverlapsLastSentence(t *testing.T) {
	p := &Processor{chunkSize: 60}

	text := "The first sentence is here. The second sentence follows it. The third sentence closes the document."
	chunks := p.chunkText(text)

	if len(chunks) < 2 {
		t.Skip("input fits in one chunk at this size")
	}

	firstSentences := strings.Split(chunks[0], ". ")
	last := firstSentences[len(firstSentences)-1]
	assert.Contains(t, chunks[1], strings.TrimSuffix(last, "."))
}

func TestChunkTextEmptyInput(t *testing.T) {
	p := &Processor{chunkSize: 1000}
	assert.Nil(t, p.chunkText(""))
}

func TestFallbackSplit(t *testing.T) {
	sentences := fallbackSplit("One. Two. Three.")

	require.Len(t, sentences, 3)
	assert.Equal(t, "One", sentences[0])
	assert.Equal(t, "Two", sentences[1])
	assert.Equal(t, "Three.", sentences[2])
}
