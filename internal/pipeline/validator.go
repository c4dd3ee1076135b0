package pipeline

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Trust score weights. Similarity dominates; source diversity and recency
// split the remainder evenly.
const (
	weightSimilarity = 0.4
	weightSource     = 0.3
	weightFreshness  = 0.3
)

// Validator scores a generated answer against the chunks it was generated
// from. It never returns an error: a failed sub-computation degrades that
// sub-score to its documented default instead of aborting the pipeline.
type Validator struct {
	embedder       Embedder
	trustThreshold float64
	logger         *zap.Logger
	now            func() time.Time
}

func NewValidator(embedder Embedder, trustThreshold float64, logger *zap.Logger) *Validator {
	if trustThreshold <= 0 {
		trustThreshold = DefaultTrustThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		embedder:       embedder,
		trustThreshold: trustThreshold,
		logger:         logger,
		now:            time.Now,
	}
}

// Validate computes the weighted trust score for an answer. An empty chunk
// set short-circuits to an untrusted zero score without touching the embedder.
func (v *Validator) Validate(ctx context.Context, answer string, chunks []Chunk) ValidationResult {
	if len(chunks) == 0 {
		return ValidationResult{
			TrustScore: 0.0,
			Decision:   DecisionUntrusted,
		}
	}

	similarity := v.computeSimilarity(ctx, answer, chunks)
	sourceScore := computeSourceScore(chunks)
	freshnessScore := v.computeFreshnessScore(chunks)

	trustScore := round3(weightSimilarity*similarity + weightSource*sourceScore + weightFreshness*freshnessScore)

	decision := DecisionUntrusted
	if trustScore >= v.trustThreshold {
		decision = DecisionTrusted
	}

	return ValidationResult{
		TrustScore: trustScore,
		Decision:   decision,
		Components: ScoreComponents{
			Similarity:     round3(similarity),
			SourceScore:    round3(sourceScore),
			FreshnessScore: round3(freshnessScore),
		},
	}
}

// computeSimilarity is the mean cosine similarity between the answer
// embedding and every chunk embedding, clamped to [0,1]. Any embedding
// failure yields 0.0.
func (v *Validator) computeSimilarity(ctx context.Context, answer string, chunks []Chunk) float64 {
	answerEmb, err := v.embedder.EmbedText(ctx, answer)
	if err != nil {
		v.logger.Warn("failed to embed answer, similarity degraded to zero", zap.Error(err))
		return 0.0
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	chunkEmbs, err := v.embedder.EmbedBatch(ctx, contents)
	if err != nil || len(chunkEmbs) == 0 {
		v.logger.Warn("failed to embed chunks, similarity degraded to zero", zap.Error(err))
		return 0.0
	}

	var total float64
	for _, emb := range chunkEmbs {
		total += cosineSimilarity(answerEmb, emb)
	}
	avg := total / float64(len(chunkEmbs))

	return math.Max(0.0, math.Min(1.0, avg))
}

// computeSourceScore maps the number of distinct doc_id values to a weight.
// Chunks without a doc_id contribute nothing to the set.
func computeSourceScore(chunks []Chunk) float64 {
	unique := make(map[string]struct{})
	for _, chunk := range chunks {
		if chunk.Metadata.DocID != "" {
			unique[chunk.Metadata.DocID] = struct{}{}
		}
	}

	switch count := len(unique); {
	case count >= 3:
		return 1.0
	case count == 2:
		return 0.7
	default:
		return 0.4
	}
}

// computeFreshnessScore averages per-chunk recency weights. A missing or
// unparsable published_at contributes the neutral 0.5.
func (v *Validator) computeFreshnessScore(chunks []Chunk) float64 {
	if len(chunks) == 0 {
		return 0.5
	}

	now := v.now().UTC()
	var total float64
	for _, chunk := range chunks {
		publishedAt, ok := parsePublishedAt(chunk.Metadata.PublishedAt)
		if !ok {
			total += 0.5
			continue
		}

		days := ageInDays(now, publishedAt)
		switch {
		case days <= 30:
			total += 1.0
		case days <= 180:
			total += 0.7
		default:
			total += 0.4
		}
	}

	return total / float64(len(chunks))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// parsePublishedAt accepts ISO-8601 timestamps with or without a time or
// zone component. Naive timestamps are treated as UTC.
func parsePublishedAt(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ageInDays truncates toward zero, matching whole-day age semantics.
func ageInDays(now, t time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}
