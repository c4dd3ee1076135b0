package generation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/factflow/backend/internal/llm"
	"github.com/factflow/backend/internal/pipeline"
)

// RefusalMessage is returned verbatim when no chunks were retrieved; the LLM
// is never consulted in that case.
const RefusalMessage = "I cannot answer the question because no relevant documents were found."

const systemPromptTemplate = `You are a strictly retrieval-based question answering assistant.
Your goal is to answer the user's question based ONLY on the provided context chunks.

RULES:
1. You must NOT use your own internal knowledge to answer the question.
2. If the answer is not contained in the context, state that you cannot answer based on the provided information.
3. You must cite your sources for every claim using the format [Source: <source_id>].
4. The context will be provided as a series of chunks with metadata.
5. Provide a helpful, concise, and accurate answer.

Context:
%s`

// Completer is the chat-completion dependency.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Generator produces an answer from retrieved chunks only. It is fail-soft:
// an LLM failure becomes an error string that downstream validation will
// score and distrust, rather than an aborted pipeline.
type Generator struct {
	completer Completer
	logger    *zap.Logger
}

func NewGenerator(completer Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		completer: completer,
		logger:    logger,
	}
}

func (g *Generator) Generate(ctx context.Context, query string, chunks []pipeline.Chunk) string {
	if len(chunks) == 0 {
		return RefusalMessage
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, formatChunks(chunks))

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   query,
	})
	if err != nil {
		g.logger.Warn("answer generation failed", zap.Error(err))
		return fmt.Sprintf("Error generating answer: %s", err.Error())
	}

	return resp.Content
}

func formatChunks(chunks []pipeline.Chunk) string {
	var builder strings.Builder
	for i, chunk := range chunks {
		source := chunk.Metadata.Source
		if source == "" {
			source = "Unknown"
		}
		builder.WriteString(fmt.Sprintf("Chunk %d [Source: %s]:\n%s\n\n", i+1, source, chunk.Content))
	}
	return builder.String()
}
