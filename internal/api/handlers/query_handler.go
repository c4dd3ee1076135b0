package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/factflow/backend/internal/metrics"
	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/internal/storage/models"
	"github.com/factflow/backend/internal/storage/sqlite"
	"github.com/factflow/backend/pkg/logger"
	"github.com/factflow/backend/pkg/utils"
)

const (
	StatusTrusted       = "trusted"
	StatusHallucinated  = "hallucinated"
	StatusLowConfidence = "low_confidence"
)

const queryCacheTTL = 10 * time.Minute

// Citation identifies one retrieved chunk that backed the answer.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	DocID      string  `json:"doc_id,omitempty"`
	Similarity float64 `json:"similarity"`
}

// QueryResponse is the wire shape for a completed pipeline run, shared by the
// HTTP and WebSocket surfaces and by the query cache.
type QueryResponse struct {
	ID            string                   `json:"id"`
	Query         string                   `json:"query"`
	Answer        string                   `json:"answer"`
	TrustScore    float64                  `json:"trust_score"`
	Status        string                   `json:"status"`
	Decision      string                   `json:"decision"`
	Hallucination bool                     `json:"hallucination"`
	Claims        []string                 `json:"claims"`
	Citations     []Citation               `json:"citations"`
	Components    pipeline.ScoreComponents `json:"components"`
	RetryCount    int                      `json:"retry_count"`
	ReasoningLog  []string                 `json:"reasoning_log"`
	LatencyMS     int                      `json:"latency_ms"`
	Cached        bool                     `json:"cached,omitempty"`
}

// ResponseCache is the query response cache dependency; nil disables caching.
type ResponseCache interface {
	GetQuery(ctx context.Context, queryHash string, response interface{}) (bool, error)
	SetQuery(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error
}

type QueryHandler struct {
	orchestrator *pipeline.Orchestrator
	store        *sqlite.Client
	cache        ResponseCache
}

func NewQueryHandler(orchestrator *pipeline.Orchestrator, store *sqlite.Client, cache ResponseCache) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		store:        store,
		cache:        cache,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	queryHash := utils.HashString(req.Query)
	if h.cache != nil {
		var cached QueryResponse
		hit, err := h.cache.GetQuery(c.Context(), queryHash, &cached)
		if err != nil {
			logger.Warn("Query cache lookup failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("query").Inc()
			cached.Cached = true
			return c.JSON(cached)
		}
		metrics.CacheMisses.WithLabelValues("query").Inc()
	}

	start := time.Now()
	var reasoningLog []string

	st, err := h.orchestrator.Run(c.Context(), req.Query, func(stage pipeline.State, s *pipeline.PipelineState) {
		reasoningLog = append(reasoningLog, describeStage(stage, s))
	})
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	latency := time.Since(start)
	response := buildResponse(st, reasoningLog, int(latency.Milliseconds()))

	metrics.QueryDuration.WithLabelValues(response.Status).Observe(latency.Seconds())
	metrics.QueryTotal.WithLabelValues(response.Status).Inc()
	metrics.TrustScore.Observe(response.TrustScore)
	metrics.PipelineRetries.Observe(float64(st.RetryCount))
	metrics.VectorResultsCount.Observe(float64(len(st.Documents)))
	if response.Hallucination {
		metrics.HallucinationsDetected.Inc()
		metrics.UnsupportedClaims.Observe(float64(len(st.Hallucination.UnsupportedClaims)))
	}

	h.persist(response, st)

	if h.cache != nil {
		if err := h.cache.SetQuery(c.Context(), queryHash, response, queryCacheTTL); err != nil {
			logger.Warn("Failed to cache query response", zap.Error(err))
		}
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	records, err := h.store.GetQueryHistory(limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		history = append(history, fiber.Map{
			"id":            record.ID,
			"query":         record.QueryText,
			"answer":        record.Answer,
			"trust_score":   record.TrustScore,
			"decision":      record.Decision,
			"hallucination": record.Hallucination,
			"retry_count":   record.RetryCount,
			"latency_ms":    record.LatencyMS,
			"created_at":    record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

func (h *QueryHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID       string `json:"query_id"`
		Helpful       *bool  `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id and helpful are required",
		})
	}

	err := h.store.InsertFeedback(&models.Feedback{
		QueryID:       req.QueryID,
		Helpful:       *req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	helpful := "false"
	if *req.Helpful {
		helpful = "true"
	}
	metrics.UserSatisfaction.WithLabelValues(helpful).Inc()

	return c.JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}

func (h *QueryHandler) persist(response QueryResponse, st *pipeline.PipelineState) {
	err := h.store.InsertQueryRecord(&models.QueryRecord{
		ID:            response.ID,
		QueryText:     response.Query,
		Answer:        response.Answer,
		TrustScore:    response.TrustScore,
		Decision:      response.Decision,
		Hallucination: response.Hallucination,
		RetryCount:    response.RetryCount,
		ChunkCount:    len(st.Documents),
		LatencyMS:     response.LatencyMS,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		logger.Error("Failed to persist query record", zap.Error(err))
		return
	}

	for _, citation := range response.Citations {
		err := h.store.InsertQuerySource(&models.QuerySource{
			QueryID:    response.ID,
			ChunkID:    citation.ChunkID,
			Source:     citation.Source,
			Similarity: citation.Similarity,
		})
		if err != nil {
			logger.Warn("Failed to persist query source", zap.Error(err))
		}
	}
}

func buildResponse(st *pipeline.PipelineState, reasoningLog []string, latencyMS int) QueryResponse {
	status := StatusLowConfidence
	if st.Validation.Decision == pipeline.DecisionTrusted {
		status = StatusTrusted
	} else if st.Hallucination.Hallucination {
		status = StatusHallucinated
	}

	citations := make([]Citation, 0, len(st.Documents))
	for _, chunk := range st.Documents {
		citations = append(citations, Citation{
			ChunkID:    chunk.ID,
			Source:     chunk.Metadata.Source,
			DocID:      chunk.Metadata.DocID,
			Similarity: chunk.Score,
		})
	}

	return QueryResponse{
		ID:            uuid.New().String(),
		Query:         st.Query,
		Answer:        st.Answer,
		TrustScore:    st.Validation.TrustScore,
		Status:        status,
		Decision:      string(st.Validation.Decision),
		Hallucination: st.Hallucination.Hallucination,
		Claims:        pipeline.SplitClaims(st.Answer),
		Citations:     citations,
		Components:    st.Validation.Components,
		RetryCount:    st.RetryCount,
		ReasoningLog:  reasoningLog,
		LatencyMS:     latencyMS,
	}
}

func describeStage(stage pipeline.State, st *pipeline.PipelineState) string {
	switch stage {
	case pipeline.StateRetrieve:
		return fmt.Sprintf("RETRIEVE: %d chunks (attempt %d)", len(st.Documents), st.RetryCount+1)
	case pipeline.StateGenerate:
		return fmt.Sprintf("GENERATE: answer of %d characters", len(st.Answer))
	case pipeline.StateValidate:
		return fmt.Sprintf("VALIDATE: trust_score=%.3f decision=%s", st.Validation.TrustScore, st.Validation.Decision)
	case pipeline.StateHallucinationCheck:
		return fmt.Sprintf("HALLUCINATION_CHECK: hallucination=%t unsupported_claims=%d",
			st.Hallucination.Hallucination, len(st.Hallucination.UnsupportedClaims))
	case pipeline.StateRefresh:
		return fmt.Sprintf("REFRESH: reason=%s retry=%d", pipeline.RefreshReasonHallucination, st.RetryCount)
	case pipeline.StateEnd:
		return "END"
	}
	return string(stage)
}
