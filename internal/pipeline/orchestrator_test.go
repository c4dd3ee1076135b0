package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(retriever Retriever, generator Generator, embedder Embedder, store VectorUpserter) *Orchestrator {
	return NewOrchestrator(
		retriever,
		generator,
		NewValidator(embedder, DefaultTrustThreshold, nil),
		NewHallucinationDetector(embedder, DefaultClaimSimilarityThreshold, nil),
		NewRefresher(embedder, store, DefaultPartialRefreshThreshold, nil),
		DefaultMaxRetries,
		nil,
	)
}

func freshChunks(docIDs ...string) []Chunk {
	recent := time.Now().UTC().AddDate(0, 0, -5).Format(time.RFC3339)
	chunks := make([]Chunk, len(docIDs))
	for i, id := range docIDs {
		chunks[i] = Chunk{
			ID:       "chunk-" + id,
			Content:  "content " + id,
			Metadata: Metadata{DocID: id, PublishedAt: recent},
		}
	}
	return chunks
}

func TestRunTrustedTerminatesWithoutRefresh(t *testing.T) {
	answer := "Well supported statement"
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		answer:      {1, 0},
		"content a": simVec(0.95),
		"content b": simVec(0.95),
		"content c": simVec(0.95),
	}}
	retriever := &fakeRetriever{chunks: freshChunks("a", "b", "c")}
	generator := &fakeGenerator{answer: answer}
	store := &fakeUpserter{}

	var stages []State
	o := newTestOrchestrator(retriever, generator, embedder, store)
	st, err := o.Run(context.Background(), "question", func(stage State, _ *PipelineState) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	assert.Equal(t, DecisionTrusted, st.Validation.Decision)
	assert.Equal(t, 0, st.RetryCount)
	assert.Equal(t, 1, retriever.calls)
	assert.Empty(t, store.batches)
	assert.Equal(t, []State{StateRetrieve, StateGenerate, StateValidate, StateEnd}, stages)
}

func TestRunLowConfidenceWithoutHallucinationEnds(t *testing.T) {
	// Mean similarity is low (0.5) so the answer is untrusted, but the best
	// per-claim similarity (0.9) clears the claim threshold: terminate with a
	// warning, no refresh.
	answer := "Single claim"
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		answer:       {1, 0},
		"Single claim": {1, 0},
		"weak chunk":   simVec(0.10),
		"strong chunk": simVec(0.90),
	}}
	retriever := &fakeRetriever{chunks: []Chunk{
		{ID: "c1", Content: "weak chunk", Metadata: Metadata{DocID: "d1", PublishedAt: "2020-01-01"}},
		{ID: "c2", Content: "strong chunk", Metadata: Metadata{DocID: "d1", PublishedAt: "2020-01-01"}},
	}}
	generator := &fakeGenerator{answer: answer + "."}
	store := &fakeUpserter{}

	o := newTestOrchestrator(retriever, generator, embedder, store)
	st, err := o.Run(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, DecisionUntrusted, st.Validation.Decision)
	assert.False(t, st.Hallucination.Hallucination)
	assert.Equal(t, 0, st.RetryCount)
	assert.Empty(t, store.batches)
	assert.Equal(t, 1, retriever.calls)
}

func TestRunHallucinationLoopIsBounded(t *testing.T) {
	// Every pass hallucinates: the machine must visit RETRIEVE exactly
	// MaxRetries+1 times and stop with RetryCount == MaxRetries.
	// Answer and claim embeddings are orthogonal to the chunk embedding, so
	// both validation similarity and claim support stay near zero.
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Fabricated claim.": {0, 1},
		"Fabricated claim":  {0, 1},
	}}
	retriever := &fakeRetriever{chunks: []Chunk{
		{ID: "c1", Content: "unrelated", Metadata: Metadata{DocID: "d1"}},
	}}
	generator := &fakeGenerator{answer: "Fabricated claim."}
	store := &fakeUpserter{}

	var refreshes int
	o := newTestOrchestrator(retriever, generator, embedder, store)
	st, err := o.Run(context.Background(), "question", func(stage State, _ *PipelineState) {
		if stage == StateRefresh {
			refreshes++
		}
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxRetries, st.RetryCount)
	assert.Equal(t, DefaultMaxRetries+1, retriever.calls)
	assert.Equal(t, DefaultMaxRetries, refreshes)
	assert.True(t, st.Hallucination.Hallucination)
}

func TestRunEmptyRetrievalLoopsThenEnds(t *testing.T) {
	// No chunks: validation is 0.0/untrusted, every claim is unsupported, and
	// each refresh is a no-op. The loop still terminates at the retry bound.
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{answer: "I cannot answer the question because no relevant documents were found."}
	store := &fakeUpserter{}

	o := newTestOrchestrator(retriever, generator, &fakeEmbedder{}, store)
	st, err := o.Run(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, 0.0, st.Validation.TrustScore)
	assert.True(t, st.Hallucination.Hallucination)
	assert.Equal(t, DefaultMaxRetries, st.RetryCount)
	assert.Empty(t, store.batches)
}

func TestRunRetrieveErrorPropagates(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("vector store unreachable")}
	o := newTestOrchestrator(retriever, &fakeGenerator{}, &fakeEmbedder{}, &fakeUpserter{})

	_, err := o.Run(context.Background(), "question")
	assert.Error(t, err)
}

func TestAfterValidateRouting(t *testing.T) {
	o := newTestOrchestrator(&fakeRetriever{}, &fakeGenerator{}, &fakeEmbedder{}, &fakeUpserter{})

	trusted := &PipelineState{Validation: ValidationResult{Decision: DecisionTrusted}}
	assert.Equal(t, StateEnd, o.afterValidate(trusted))

	untrusted := &PipelineState{Validation: ValidationResult{Decision: DecisionUntrusted}}
	assert.Equal(t, StateHallucinationCheck, o.afterValidate(untrusted))
}

func TestAfterHallucinationRouting(t *testing.T) {
	o := newTestOrchestrator(&fakeRetriever{}, &fakeGenerator{}, &fakeEmbedder{}, &fakeUpserter{})

	detected := &PipelineState{Hallucination: HallucinationResult{Hallucination: true}}
	assert.Equal(t, StateRefresh, o.afterHallucination(detected))

	detected.RetryCount = DefaultMaxRetries
	assert.Equal(t, StateEnd, o.afterHallucination(detected))

	clean := &PipelineState{Hallucination: HallucinationResult{Hallucination: false}}
	assert.Equal(t, StateEnd, o.afterHallucination(clean))
}
