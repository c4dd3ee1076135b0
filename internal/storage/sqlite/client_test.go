package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factflow/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.InitSchema())
	return c
}

func TestInsertAndFetchQueryHistory(t *testing.T) {
	c := newTestClient(t)

	first := &models.QueryRecord{
		ID:            "q1",
		QueryText:     "what is the policy?",
		Answer:        "The policy allows refunds.",
		TrustScore:    0.82,
		Decision:      "trusted",
		Hallucination: false,
		RetryCount:    0,
		ChunkCount:    3,
		LatencyMS:     230,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	second := &models.QueryRecord{
		ID:            "q2",
		QueryText:     "who founded the company?",
		Answer:        "Fabricated answer.",
		TrustScore:    0.31,
		Decision:      "untrusted",
		Hallucination: true,
		RetryCount:    2,
		ChunkCount:    2,
		LatencyMS:     810,
		CreatedAt:     time.Now(),
	}

	require.NoError(t, c.InsertQueryRecord(first))
	require.NoError(t, c.InsertQueryRecord(second))

	records, err := c.GetQueryHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "q2", records[0].ID)
	assert.True(t, records[0].Hallucination)
	assert.Equal(t, 2, records[0].RetryCount)

	assert.Equal(t, "q1", records[1].ID)
	assert.Equal(t, 0.82, records[1].TrustScore)
	assert.False(t, records[1].Hallucination)
}

func TestGetQueryHistoryDefaultLimit(t *testing.T) {
	c := newTestClient(t)

	records, err := c.GetQueryHistory(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsertDocumentUpsertsOnConflict(t *testing.T) {
	c := newTestClient(t)

	doc := &models.Document{
		ID:          "d1",
		URL:         "https://example.com/doc",
		Title:       "Original",
		Source:      "https://example.com/doc",
		ContentHash: "hash-v1",
		PublishedAt: "2025-01-01",
		RawContent:  "original content",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, c.InsertDocument(doc))

	doc.Title = "Updated"
	doc.ContentHash = "hash-v2"
	require.NoError(t, c.InsertDocument(doc))

	var title, hash string
	row := c.db.QueryRow("SELECT title, content_hash FROM documents WHERE id = ?", "d1")
	require.NoError(t, row.Scan(&title, &hash))
	assert.Equal(t, "Updated", title)
	assert.Equal(t, "hash-v2", hash)
}

func TestInsertQuerySourceAndFeedback(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.InsertQueryRecord(&models.QueryRecord{
		ID:        "q1",
		QueryText: "q",
		CreatedAt: time.Now(),
	}))

	require.NoError(t, c.InsertQuerySource(&models.QuerySource{
		QueryID:    "q1",
		ChunkID:    "c1",
		Source:     "handbook.pdf",
		Similarity: 0.88,
	}))

	require.NoError(t, c.InsertFeedback(&models.Feedback{
		QueryID:       "q1",
		Helpful:       true,
		IssueCategory: "",
		Comment:       "accurate answer",
		CreatedAt:     time.Now(),
	}))

	var count int
	row := c.db.QueryRow("SELECT COUNT(*) FROM query_sources WHERE query_id = ?", "q1")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)

	row = c.db.QueryRow("SELECT COUNT(*) FROM feedback WHERE query_id = ?", "q1")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInsertChunkUpsertsText(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.InsertDocument(&models.Document{
		ID:        "d1",
		URL:       "https://example.com/doc",
		Title:     "Doc",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))

	chunk := &models.DocumentChunk{
		ID:          "d1_chunk_0",
		DocID:       "d1",
		ChunkIndex:  0,
		Text:        "first version",
		ContentHash: "h1",
		EmbeddingID: "d1_chunk_0",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, c.InsertChunk(chunk))

	chunk.Text = "second version"
	chunk.ContentHash = "h2"
	require.NoError(t, c.InsertChunk(chunk))

	var text string
	row := c.db.QueryRow("SELECT text FROM document_chunks WHERE id = ?", "d1_chunk_0")
	require.NoError(t, row.Scan(&text))
	assert.Equal(t, "second version", text)
}
