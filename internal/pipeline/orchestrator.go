package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// State enumerates the orchestration machine. The machine always terminates:
// the only cycle (REFRESH → RETRIEVE) increments RetryCount, which is checked
// against maxRetries before entering REFRESH.
type State string

const (
	StateRetrieve           State = "RETRIEVE"
	StateGenerate           State = "GENERATE"
	StateValidate           State = "VALIDATE"
	StateHallucinationCheck State = "HALLUCINATION_CHECK"
	StateRefresh            State = "REFRESH"
	StateEnd                State = "END"
)

// RefreshReasonHallucination is the reason recorded when the retry loop
// triggers a knowledge refresh.
const RefreshReasonHallucination = "hallucination_detected"

// Retriever fetches ranked chunks for a query. An empty query must yield an
// empty result without touching the vector store.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Chunk, error)
}

// Generator produces an answer from the query and retrieved chunks. It is
// fail-soft: collaborator errors come back as an error string standing in for
// the answer, which validation then legitimately distrusts.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []Chunk) string
}

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// UpsertVector is the write shape the refresher hands to the vector store.
type UpsertVector struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  Metadata
}

// VectorUpserter persists re-embedded chunks. Upsert is idempotent per ID.
type VectorUpserter interface {
	Upsert(ctx context.Context, vectors []UpsertVector) error
}

// StageObserver is invoked after every node completes, with the state that
// just ran and the current pipeline state. Used for streaming and metrics.
type StageObserver func(stage State, st *PipelineState)

// Orchestrator sequences retrieve → generate → validate and the distrust
// branch (hallucination check → refresh → retrieve), bounded by maxRetries.
type Orchestrator struct {
	retriever  Retriever
	generator  Generator
	validator  *Validator
	detector   *HallucinationDetector
	refresher  *Refresher
	maxRetries int
	logger     *zap.Logger
}

func NewOrchestrator(
	retriever Retriever,
	generator Generator,
	validator *Validator,
	detector *HallucinationDetector,
	refresher *Refresher,
	maxRetries int,
	logger *zap.Logger,
) *Orchestrator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever:  retriever,
		generator:  generator,
		validator:  validator,
		detector:   detector,
		refresher:  refresher,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Run executes one full pipeline pass for a query. The returned state is the
// terminal state of the machine; errors are collaborator failures that the
// fail-soft components do not absorb (retrieval, claim verification, refresh).
func (o *Orchestrator) Run(ctx context.Context, query string, observers ...StageObserver) (*PipelineState, error) {
	st := &PipelineState{Query: query}
	state := StateRetrieve

	notify := func(stage State) {
		for _, fn := range observers {
			fn(stage, st)
		}
	}

	for state != StateEnd {
		switch state {
		case StateRetrieve:
			docs, err := o.retriever.Retrieve(ctx, st.Query)
			if err != nil {
				return nil, fmt.Errorf("retrieve: %w", err)
			}
			st.Documents = docs
			o.logger.Info("chunks retrieved",
				zap.Int("count", len(docs)),
				zap.Int("retry_count", st.RetryCount),
			)
			notify(StateRetrieve)
			state = StateGenerate

		case StateGenerate:
			st.Answer = o.generator.Generate(ctx, st.Query, st.Documents)
			o.logger.Info("answer generated", zap.Int("answer_length", len(st.Answer)))
			notify(StateGenerate)
			state = StateValidate

		case StateValidate:
			st.Validation = o.validator.Validate(ctx, st.Answer, st.Documents)
			o.logger.Info("answer validated",
				zap.Float64("trust_score", st.Validation.TrustScore),
				zap.String("decision", string(st.Validation.Decision)),
			)
			notify(StateValidate)
			state = o.afterValidate(st)

		case StateHallucinationCheck:
			result, err := o.detector.Detect(ctx, st.Answer, st.Documents)
			if err != nil {
				return nil, fmt.Errorf("hallucination check: %w", err)
			}
			st.Hallucination = result
			o.logger.Info("hallucination check completed",
				zap.Bool("hallucination", result.Hallucination),
				zap.Int("unsupported_claims", len(result.UnsupportedClaims)),
			)
			notify(StateHallucinationCheck)
			state = o.afterHallucination(st)

		case StateRefresh:
			if _, err := o.refresher.Refresh(ctx, RefreshReasonHallucination, st.Documents); err != nil {
				return nil, fmt.Errorf("refresh: %w", err)
			}
			st.RetryCount++
			notify(StateRefresh)
			state = StateRetrieve
		}
	}

	notify(StateEnd)
	return st, nil
}

// afterValidate routes a trusted answer straight to END; anything else goes
// through the claim-level check.
func (o *Orchestrator) afterValidate(st *PipelineState) State {
	if st.Validation.Decision == DecisionTrusted {
		return StateEnd
	}
	return StateHallucinationCheck
}

// afterHallucination enters the refresh loop only while retries remain.
// Low trust without hallucination terminates with a warning, not an error.
func (o *Orchestrator) afterHallucination(st *PipelineState) State {
	if st.Hallucination.Hallucination && st.RetryCount < o.maxRetries {
		return StateRefresh
	}
	return StateEnd
}
