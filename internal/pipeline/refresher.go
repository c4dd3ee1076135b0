package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Refresher re-embeds chunk content and upserts it into the vector store.
// Small chunk sets (at most partialThreshold) are refreshed one vector at a
// time; larger sets go through a single batched upsert.
type Refresher struct {
	embedder         Embedder
	store            VectorUpserter
	partialThreshold int
	logger           *zap.Logger
}

func NewRefresher(embedder Embedder, store VectorUpserter, partialThreshold int, logger *zap.Logger) *Refresher {
	if partialThreshold <= 0 {
		partialThreshold = DefaultPartialRefreshThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		embedder:         embedder,
		store:            store,
		partialThreshold: partialThreshold,
		logger:           logger,
	}
}

// Refresh re-indexes the given chunks. Chunks missing an ID or content are
// skipped silently and do not count toward UpdatedDocuments.
func (r *Refresher) Refresh(ctx context.Context, reason string, chunks []Chunk) (RefreshResult, error) {
	if len(chunks) == 0 {
		result := RefreshResult{
			RefreshType:      RefreshNone,
			UpdatedDocuments: 0,
			Status:           "completed",
		}
		r.logRefresh(reason, result)
		return result, nil
	}

	refreshType := RefreshFull
	if len(chunks) <= r.partialThreshold {
		refreshType = RefreshPartial
	}

	var updated int
	var err error
	if refreshType == RefreshPartial {
		updated, err = r.partialReindex(ctx, chunks)
	} else {
		updated, err = r.fullReindex(ctx, chunks)
	}
	if err != nil {
		return RefreshResult{}, err
	}

	result := RefreshResult{
		RefreshType:      refreshType,
		UpdatedDocuments: updated,
		Status:           "completed",
	}
	r.logRefresh(reason, result)
	return result, nil
}

func (r *Refresher) partialReindex(ctx context.Context, chunks []Chunk) (int, error) {
	updated := 0
	for _, chunk := range chunks {
		if chunk.ID == "" || chunk.Content == "" {
			continue
		}

		embedding, err := r.embedder.EmbedText(ctx, chunk.Content)
		if err != nil {
			return updated, fmt.Errorf("failed to re-embed chunk %s: %w", chunk.ID, err)
		}

		vector := UpsertVector{
			ID:        chunk.ID,
			Embedding: embedding,
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
		}
		if err := r.store.Upsert(ctx, []UpsertVector{vector}); err != nil {
			return updated, fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
		}
		updated++
	}
	return updated, nil
}

func (r *Refresher) fullReindex(ctx context.Context, chunks []Chunk) (int, error) {
	eligible := make([]Chunk, 0, len(chunks))
	contents := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == "" || chunk.Content == "" {
			continue
		}
		eligible = append(eligible, chunk)
		contents = append(contents, chunk.Content)
	}

	if len(eligible) == 0 {
		return 0, nil
	}

	embeddings, err := r.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("failed to re-embed chunks: %w", err)
	}
	if len(embeddings) != len(eligible) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(eligible))
	}

	vectors := make([]UpsertVector, len(eligible))
	for i, chunk := range eligible {
		vectors[i] = UpsertVector{
			ID:        chunk.ID,
			Embedding: embeddings[i],
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
		}
	}

	if err := r.store.Upsert(ctx, vectors); err != nil {
		return 0, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	return len(vectors), nil
}

// Every refresh emits one traceable record, including the no-op case.
func (r *Refresher) logRefresh(reason string, result RefreshResult) {
	r.logger.Info("knowledge refresh completed",
		zap.Time("timestamp", time.Now()),
		zap.String("reason", reason),
		zap.String("refresh_type", string(result.RefreshType)),
		zap.Int("updated_documents", result.UpdatedDocuments),
	)
}
