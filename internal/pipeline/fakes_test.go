package pipeline

import (
	"context"
	"math"
)

// fakeEmbedder returns canned unit vectors per input text. Unknown texts get
// the reference vector (1,0), so cosine similarity against it is the first
// component of the other vector.
type fakeEmbedder struct {
	vectors  map[string][]float32
	textErr  error
	batchErr error
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	return f.vec(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vec(text)
	}
	return out, nil
}

func (f *fakeEmbedder) vec(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{1, 0}
}

// simVec builds a unit vector whose cosine similarity against (1,0) is cos.
func simVec(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

type fakeRetriever struct {
	chunks []Chunk
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string) ([]Chunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeGenerator struct {
	answer string
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ []Chunk) string {
	f.calls++
	return f.answer
}

type fakeUpserter struct {
	batches [][]UpsertVector
	err     error
}

func (f *fakeUpserter) Upsert(_ context.Context, vectors []UpsertVector) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, vectors)
	return nil
}

func (f *fakeUpserter) totalVectors() int {
	n := 0
	for _, batch := range f.batches {
		n += len(batch)
	}
	return n
}
