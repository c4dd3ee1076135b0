package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/pkg/logger"
)

type WebSocketHandler struct {
	orchestrator *pipeline.Orchestrator
}

func NewWebSocketHandler(orchestrator *pipeline.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" || msg.Content == "" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		err = h.streamPipeline(c, msg.Content)
		if err != nil {
			logger.Error("Failed to stream pipeline run", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

// streamPipeline runs the full pipeline, pushing one stage event per node as
// it completes, then the final result.
func (h *WebSocketHandler) streamPipeline(c *websocket.Conn, queryText string) error {
	ctx := context.Background()

	var reasoningLog []string
	var writeErr error

	st, err := h.orchestrator.Run(ctx, queryText, func(stage pipeline.State, s *pipeline.PipelineState) {
		detail := describeStage(stage, s)
		reasoningLog = append(reasoningLog, detail)

		if writeErr != nil {
			return
		}
		writeErr = c.WriteJSON(map[string]interface{}{
			"type":   "stage",
			"stage":  string(stage),
			"detail": detail,
		})
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	response := buildResponse(st, reasoningLog, 0)

	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": response,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
