package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/internal/vector/milvus"
)

// Embedder is the single-text embedding dependency used for queries.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector-store read side.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error)
}

// Retriever embeds a query and fetches the top-K nearest chunks. Store
// results are normalized into the canonical chunk record here, once, so the
// rest of the pipeline never sees store-specific shapes.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
	logger   *zap.Logger
}

func NewRetriever(embedder Embedder, searcher Searcher, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		logger:   logger,
	}
}

// Retrieve returns ranked chunks for a query. A blank query yields nothing
// without touching the embedder or the store.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]pipeline.Chunk, error) {
	cleaned := strings.TrimSpace(query)
	if cleaned == "" {
		return nil, nil
	}

	embedding, err := r.embedder.EmbedText(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.searcher.Search(ctx, embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	chunks := make([]pipeline.Chunk, 0, len(results))
	for _, result := range results {
		chunks = append(chunks, pipeline.Chunk{
			ID:      result.ChunkID,
			Content: result.Content,
			Metadata: pipeline.Metadata{
				Source:      result.Source,
				DocID:       result.DocID,
				PublishedAt: result.PublishedAt,
				ContentHash: result.ContentHash,
				Page:        int(result.Page),
			},
			Score: result.Score,
		})
	}

	r.logger.Debug("query retrieved",
		zap.String("query", cleaned),
		zap.Int("chunks", len(chunks)),
	)

	return chunks, nil
}
