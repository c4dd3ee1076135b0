package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/pkg/logger"
)

// Client wraps the Milvus collection holding chunk embeddings. The index uses
// the inner-product metric over unit-normalized embeddings, so every score it
// returns is a cosine similarity: higher means more relevant.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// SearchResult is one raw nearest-neighbor hit. Retrieval converts these to
// pipeline chunks at the boundary.
type SearchResult struct {
	ChunkID     string
	Content     string
	Source      string
	DocID       string
	PublishedAt string
	ContentHash string
	Page        int64
	Score       float64
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	cfg := client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	}
	c, err := client.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Chunk embeddings with provenance metadata",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "source",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "doc_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "published_at",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "content_hash",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "page",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// Search runs a top-K nearest-neighbor lookup for the query embedding.
func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{"chunk_id", "content", "source", "doc_id", "published_at", "content_hash", "page"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := sr.Fields.GetColumn("chunk_id").Get(i)
			content, _ := sr.Fields.GetColumn("content").Get(i)
			source, _ := sr.Fields.GetColumn("source").Get(i)
			docID, _ := sr.Fields.GetColumn("doc_id").Get(i)
			publishedAt, _ := sr.Fields.GetColumn("published_at").Get(i)
			contentHash, _ := sr.Fields.GetColumn("content_hash").Get(i)
			page, _ := sr.Fields.GetColumn("page").Get(i)

			results = append(results, SearchResult{
				ChunkID:     chunkID.(string),
				Content:     content.(string),
				Source:      source.(string),
				DocID:       docID.(string),
				PublishedAt: publishedAt.(string),
				ContentHash: contentHash.(string),
				Page:        page.(int64),
				Score:       float64(sr.Scores[i]),
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Upsert writes re-embedded chunks, replacing any existing vector with the
// same chunk_id. Implements the pipeline's VectorUpserter contract.
func (m *Client) Upsert(ctx context.Context, vectors []pipeline.UpsertVector) error {
	if len(vectors) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))
	contents := make([]string, len(vectors))
	sources := make([]string, len(vectors))
	docIDs := make([]string, len(vectors))
	publishedAts := make([]string, len(vectors))
	contentHashes := make([]string, len(vectors))
	pages := make([]int64, len(vectors))

	for i, v := range vectors {
		chunkIDs[i] = v.ID
		embeddings[i] = v.Embedding
		contents[i] = v.Content
		sources[i] = v.Metadata.Source
		docIDs[i] = v.Metadata.DocID
		publishedAts[i] = v.Metadata.PublishedAt
		contentHashes[i] = v.Metadata.ContentHash
		pages[i] = int64(v.Metadata.Page)
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnVarChar("doc_id", docIDs),
		entity.NewColumnVarChar("published_at", publishedAts),
		entity.NewColumnVarChar("content_hash", contentHashes),
		entity.NewColumnInt64("page", pages),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Vectors upserted", zap.Int("count", len(vectors)))

	return nil
}
