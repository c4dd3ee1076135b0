package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factflow/backend/internal/pipeline"
)

func TestBuildResponseTrusted(t *testing.T) {
	st := &pipeline.PipelineState{
		Query:  "what is the refund policy?",
		Answer: "Refunds are issued within 30 days.",
		Documents: []pipeline.Chunk{
			{ID: "c1", Metadata: pipeline.Metadata{Source: "policy.md", DocID: "d1"}, Score: 0.92},
			{ID: "c2", Metadata: pipeline.Metadata{Source: "faq.md", DocID: "d2"}, Score: 0.81},
		},
		Validation: pipeline.ValidationResult{
			TrustScore: 0.87,
			Decision:   pipeline.DecisionTrusted,
		},
	}

	resp := buildResponse(st, []string{"RETRIEVE: 2 chunks (attempt 1)"}, 120)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, StatusTrusted, resp.Status)
	assert.Equal(t, "trusted", resp.Decision)
	assert.Equal(t, 0.87, resp.TrustScore)
	assert.False(t, resp.Hallucination)
	assert.Equal(t, 120, resp.LatencyMS)

	require.Len(t, resp.Citations, 2)
	assert.Equal(t, "c1", resp.Citations[0].ChunkID)
	assert.Equal(t, "policy.md", resp.Citations[0].Source)
	assert.Equal(t, 0.92, resp.Citations[0].Similarity)

	require.Len(t, resp.Claims, 1)
	assert.Equal(t, "Refunds are issued within 30 days", resp.Claims[0])
}

func TestBuildResponseHallucinated(t *testing.T) {
	st := &pipeline.PipelineState{
		Query:  "q",
		Answer: "Fabricated fact.",
		Validation: pipeline.ValidationResult{
			TrustScore: 0.3,
			Decision:   pipeline.DecisionUntrusted,
		},
		Hallucination: pipeline.HallucinationResult{
			Hallucination:     true,
			UnsupportedClaims: []string{"Fabricated fact"},
		},
		RetryCount: 2,
	}

	resp := buildResponse(st, nil, 0)

	assert.Equal(t, StatusHallucinated, resp.Status)
	assert.True(t, resp.Hallucination)
	assert.Equal(t, 2, resp.RetryCount)
}

func TestBuildResponseLowConfidence(t *testing.T) {
	st := &pipeline.PipelineState{
		Query:  "q",
		Answer: "Weakly supported answer.",
		Validation: pipeline.ValidationResult{
			TrustScore: 0.5,
			Decision:   pipeline.DecisionUntrusted,
		},
		Hallucination: pipeline.HallucinationResult{Hallucination: false},
	}

	resp := buildResponse(st, nil, 0)

	assert.Equal(t, StatusLowConfidence, resp.Status)
	assert.False(t, resp.Hallucination)
}

func TestDescribeStage(t *testing.T) {
	st := &pipeline.PipelineState{
		Documents:  []pipeline.Chunk{{ID: "c1"}},
		Answer:     "hello",
		RetryCount: 1,
		Validation: pipeline.ValidationResult{
			TrustScore: 0.65,
			Decision:   pipeline.DecisionTrusted,
		},
		Hallucination: pipeline.HallucinationResult{
			Hallucination:     true,
			UnsupportedClaims: []string{"a", "b"},
		},
	}

	assert.Equal(t, "RETRIEVE: 1 chunks (attempt 2)", describeStage(pipeline.StateRetrieve, st))
	assert.Equal(t, "GENERATE: answer of 5 characters", describeStage(pipeline.StateGenerate, st))
	assert.Equal(t, "VALIDATE: trust_score=0.650 decision=trusted", describeStage(pipeline.StateValidate, st))
	assert.Equal(t,
		"HALLUCINATION_CHECK: hallucination=true unsupported_claims=2",
		describeStage(pipeline.StateHallucinationCheck, st))
	assert.Equal(t, "REFRESH: reason=hallucination_detected retry=1", describeStage(pipeline.StateRefresh, st))
	assert.Equal(t, "END", describeStage(pipeline.StateEnd, st))
}
