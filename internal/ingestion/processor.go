package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/internal/storage/models"
	"github.com/factflow/backend/internal/storage/sqlite"
	"github.com/factflow/backend/pkg/logger"
	"github.com/factflow/backend/pkg/utils"
)

// Document is the raw ingestion input.
type Document struct {
	URL         string
	Title       string
	HTMLContent string
	PublishedAt string
}

// Result summarizes one processed document.
type Result struct {
	DocID       string
	ChunkCount  int
	PublishedAt string
}

// Embedder is the batch embedding dependency.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CacheInvalidator drops cached query responses after the corpus changes.
// A nil invalidator disables the step.
type CacheInvalidator interface {
	InvalidateQueryCache(ctx context.Context) error
}

type Processor struct {
	db        *sqlite.Client
	vectorDB  pipeline.VectorUpserter
	embedder  Embedder
	cache     CacheInvalidator
	chunkSize int
}

func NewProcessor(db *sqlite.Client, vectorDB pipeline.VectorUpserter, embedder Embedder, cache CacheInvalidator) *Processor {
	return &Processor{
		db:        db,
		vectorDB:  vectorDB,
		embedder:  embedder,
		cache:     cache,
		chunkSize: 1000,
	}
}

func (p *Processor) ProcessDocument(ctx context.Context, doc Document) (*Result, error) {
	logger.Info("Processing document", zap.String("url", doc.URL))

	cleanedText := p.cleanHTML(doc.HTMLContent)
	if cleanedText == "" {
		return nil, fmt.Errorf("no content extracted from HTML")
	}

	title := doc.Title
	if title == "" {
		title = p.extractTitle(doc.HTMLContent)
	}

	publishedAt := doc.PublishedAt
	if publishedAt == "" {
		publishedAt = p.extractPublishedAt(doc.HTMLContent)
	}

	docID := utils.HashString(doc.URL)
	contentHash := utils.ContentHash(cleanedText)

	record := &models.Document{
		ID:          docID,
		URL:         doc.URL,
		Title:       title,
		Source:      doc.URL,
		ContentHash: contentHash,
		PublishedAt: publishedAt,
		RawContent:  cleanedText,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := p.db.InsertDocument(record); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	chunks := p.chunkText(cleanedText)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	vectors := make([]pipeline.UpsertVector, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)
		vectors = append(vectors, pipeline.UpsertVector{
			ID:        chunkID,
			Embedding: embeddings[i],
			Content:   chunkText,
			Metadata: pipeline.Metadata{
				Source:      doc.URL,
				DocID:       docID,
				PublishedAt: publishedAt,
				ContentHash: utils.ContentHash(chunkText),
				Page:        i,
			},
		})

		dbChunk := &models.DocumentChunk{
			ID:          chunkID,
			DocID:       docID,
			ChunkIndex:  i,
			Text:        chunkText,
			ContentHash: utils.ContentHash(chunkText),
			EmbeddingID: chunkID,
			CreatedAt:   time.Now(),
		}
		if err := p.db.InsertChunk(dbChunk); err != nil {
			logger.Warn("Failed to insert chunk record", zap.String("chunk_id", chunkID), zap.Error(err))
		}
	}

	if len(vectors) > 0 {
		if err := p.vectorDB.Upsert(ctx, vectors); err != nil {
			return nil, fmt.Errorf("failed to insert into vector DB: %w", err)
		}
	}

	if p.cache != nil {
		if err := p.cache.InvalidateQueryCache(ctx); err != nil {
			logger.Warn("Failed to invalidate query cache", zap.Error(err))
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(vectors)),
	)

	return &Result{
		DocID:       docID,
		ChunkCount:  len(vectors),
		PublishedAt: publishedAt,
	}, nil
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

func (p *Processor) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	if title == "" {
		title = "Untitled"
	}

	return strings.TrimSpace(title)
}

// extractPublishedAt looks for the usual publication markers in the HTML.
// Returns "" when none are present; downstream scoring treats that as an
// unknown publication date.
func (p *Processor) extractPublishedAt(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if content, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		return strings.TrimSpace(content)
	}

	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		return strings.TrimSpace(datetime)
	}

	return ""
}

// chunkText groups whole sentences into chunks of roughly chunkSize
// characters, carrying the last sentence of each chunk into the next so a
// claim split across a boundary stays retrievable.
func (p *Processor) chunkText(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentSize := 0

	for _, sentence := range sentences {
		if currentSize+len(sentence) > p.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			last := current[len(current)-1]
			current = []string{last}
			currentSize = len(last)
		}
		current = append(current, sentence)
		currentSize += len(sentence) + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		logger.Warn("Sentence segmentation failed, falling back to delimiter split", zap.Error(err))
		return fallbackSplit(text)
	}

	var sentences []string
	for _, sentence := range doc.Sentences() {
		trimmed := strings.TrimSpace(sentence.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}

	return sentences
}

func fallbackSplit(text string) []string {
	var sentences []string
	for _, part := range strings.Split(text, ". ") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}
