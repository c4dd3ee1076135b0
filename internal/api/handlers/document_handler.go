package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/factflow/backend/internal/ingestion"
	"github.com/factflow/backend/internal/metrics"
	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	watcher   *pipeline.Watcher
	refresher *pipeline.Refresher
}

func NewDocumentHandler(processor *ingestion.Processor, watcher *pipeline.Watcher, refresher *pipeline.Refresher) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		watcher:   watcher,
		refresher: refresher,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		HTMLContent string `json:"html_content"`
		PublishedAt string `json:"published_at"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL and HTML content are required",
		})
	}

	result, err := h.processor.ProcessDocument(c.Context(), ingestion.Document{
		URL:         req.URL,
		Title:       req.Title,
		HTMLContent: req.HTMLContent,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	metrics.DocumentsProcessed.Inc()

	return c.JSON(fiber.Map{
		"message":   "Document processed successfully",
		"url":       req.URL,
		"doc_id":    result.DocID,
		"chunks":    result.ChunkCount,
		"published": result.PublishedAt,
	})
}

// WatchDocuments checks the submitted chunks for staleness. With ?refresh=true
// any stale set is immediately re-indexed through the refresher.
func (h *DocumentHandler) WatchDocuments(c *fiber.Ctx) error {
	var req struct {
		Chunks []pipeline.Chunk `json:"chunks"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	watch := h.watcher.CheckDocuments(req.Chunks)
	if watch.Stale {
		metrics.StaleDocuments.WithLabelValues(string(watch.Reason)).Add(float64(watch.ChangedDocuments))
	}

	response := fiber.Map{
		"stale":             watch.Stale,
		"changed_documents": watch.ChangedDocuments,
		"reason":            watch.Reason,
	}

	if watch.Stale && c.QueryBool("refresh") {
		refresh, err := h.refresher.Refresh(c.Context(), string(watch.Reason), req.Chunks)
		if err != nil {
			logger.Error("Failed to refresh stale documents", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to refresh stale documents",
			})
		}
		metrics.RefreshesTotal.WithLabelValues(string(refresh.RefreshType)).Inc()
		response["refresh"] = refresh
	}

	return c.JSON(response)
}
