package models

import "time"

type Document struct {
	ID          string
	URL         string
	Title       string
	Source      string
	ContentHash string
	PublishedAt string
	RawContent  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DocumentChunk struct {
	ID          string
	DocID       string
	ChunkIndex  int
	Text        string
	ContentHash string
	EmbeddingID string
	CreatedAt   time.Time
}

// QueryRecord is one pipeline run as persisted for the history endpoint.
type QueryRecord struct {
	ID            string
	QueryText     string
	Answer        string
	TrustScore    float64
	Decision      string
	Hallucination bool
	RetryCount    int
	ChunkCount    int
	LatencyMS     int
	CreatedAt     time.Time
}

type QuerySource struct {
	ID         int
	QueryID    string
	ChunkID    string
	Source     string
	Similarity float64
}

type Feedback struct {
	ID            int
	QueryID       string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}
