package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/factflow/backend/internal/llm"
	"github.com/factflow/backend/internal/pipeline"
)

type stubCompleter struct {
	response *llm.CompletionResponse
	err      error
	calls    int
	lastReq  llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	s.lastReq = req
	return s.response, s.err
}

func TestGenerateEmptyChunksReturnsRefusal(t *testing.T) {
	completer := &stubCompleter{}
	g := NewGenerator(completer, nil)

	answer := g.Generate(context.Background(), "any question", nil)

	assert.Equal(t, RefusalMessage, answer)
	assert.Equal(t, 0, completer.calls)
}

func TestGenerateFormatsChunkContext(t *testing.T) {
	completer := &stubCompleter{response: &llm.CompletionResponse{Content: "the answer"}}
	g := NewGenerator(completer, nil)

	chunks := []pipeline.Chunk{
		{ID: "c1", Content: "first chunk text", Metadata: pipeline.Metadata{Source: "guide.md"}},
		{ID: "c2", Content: "second chunk text"},
	}

	answer := g.Generate(context.Background(), "the question", chunks)

	assert.Equal(t, "the answer", answer)
	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, "the question", completer.lastReq.UserPrompt)
	assert.True(t, strings.Contains(completer.lastReq.SystemPrompt, "Chunk 1 [Source: guide.md]:\nfirst chunk text"))
	assert.True(t, strings.Contains(completer.lastReq.SystemPrompt, "Chunk 2 [Source: Unknown]:\nsecond chunk text"))
}

func TestGenerateLLMFailureReturnsErrorString(t *testing.T) {
	completer := &stubCompleter{err: errors.New("rate limited")}
	g := NewGenerator(completer, nil)

	answer := g.Generate(context.Background(), "q", []pipeline.Chunk{{ID: "c1", Content: "text"}})

	assert.Equal(t, "Error generating answer: rate limited", answer)
}
