package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// HallucinationDetector splits an answer into sentence-level claims and
// verifies each one against the retrieved chunks. A claim whose best
// supporting-chunk similarity falls below the threshold is unsupported.
type HallucinationDetector struct {
	embedder  Embedder
	threshold float64
	logger    *zap.Logger
}

func NewHallucinationDetector(embedder Embedder, threshold float64, logger *zap.Logger) *HallucinationDetector {
	if threshold <= 0 {
		threshold = DefaultClaimSimilarityThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HallucinationDetector{
		embedder:  embedder,
		threshold: threshold,
		logger:    logger,
	}
}

// Detect verifies every claim in the answer. With no chunks to check against,
// every claim is unsupported without any embedding call.
func (d *HallucinationDetector) Detect(ctx context.Context, answer string, chunks []Chunk) (HallucinationResult, error) {
	claims := SplitClaims(answer)
	if len(claims) == 0 {
		return HallucinationResult{
			Hallucination:     false,
			UnsupportedClaims: []string{},
		}, nil
	}

	if len(chunks) == 0 {
		return HallucinationResult{
			Hallucination:     true,
			UnsupportedClaims: claims,
		}, nil
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	// Chunk embeddings are computed once and shared across all claims.
	chunkEmbs, err := d.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return HallucinationResult{}, fmt.Errorf("failed to embed chunks: %w", err)
	}

	unsupported := []string{}
	for _, claim := range claims {
		claimEmb, err := d.embedder.EmbedText(ctx, claim)
		if err != nil {
			return HallucinationResult{}, fmt.Errorf("failed to embed claim: %w", err)
		}

		best := 0.0
		for _, emb := range chunkEmbs {
			if sim := cosineSimilarity(claimEmb, emb); sim > best {
				best = sim
			}
		}

		if best < d.threshold {
			d.logger.Debug("unsupported claim",
				zap.String("claim", claim),
				zap.Float64("best_similarity", best),
			)
			unsupported = append(unsupported, claim)
		}
	}

	return HallucinationResult{
		Hallucination:     len(unsupported) > 0,
		UnsupportedClaims: unsupported,
	}, nil
}

// SplitClaims decomposes an answer into atomic claims on the '.' delimiter,
// trimming whitespace and dropping empty segments. Deliberately simple:
// claim granularity is part of the detector's calibrated semantics, so the
// split policy stays fixed alongside the similarity threshold.
func SplitClaims(answer string) []string {
	parts := strings.Split(answer, ".")
	claims := make([]string, 0, len(parts))
	for _, part := range parts {
		if claim := strings.TrimSpace(part); claim != "" {
			claims = append(claims, claim)
		}
	}
	return claims
}
