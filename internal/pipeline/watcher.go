package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/factflow/backend/pkg/utils"
)

// Watcher inspects chunk metadata for staleness. It is purely diagnostic and
// never writes to the vector store; acting on its report is the caller's job.
type Watcher struct {
	freshnessThresholdDays int
	logger                 *zap.Logger
	now                    func() time.Time
}

func NewWatcher(freshnessThresholdDays int, logger *zap.Logger) *Watcher {
	if freshnessThresholdDays <= 0 {
		freshnessThresholdDays = DefaultFreshnessThresholdDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		freshnessThresholdDays: freshnessThresholdDays,
		logger:                 logger,
		now:                    time.Now,
	}
}

// CheckDocuments recomputes each chunk's content hash against the stored one
// and checks publication age against the freshness window. A chunk can count
// toward both; hash mismatches take precedence in the reported reason.
func (w *Watcher) CheckDocuments(chunks []Chunk) WatchResult {
	if len(chunks) == 0 {
		return WatchResult{
			Stale:            false,
			ChangedDocuments: 0,
			Reason:           ReasonNoChange,
		}
	}

	now := w.now().UTC()
	hashMismatches := 0
	outdatedCount := 0

	for _, chunk := range chunks {
		stored := chunk.Metadata.ContentHash
		if stored != "" && utils.ContentHash(chunk.Content) != stored {
			hashMismatches++
		}

		if publishedAt, ok := parsePublishedAt(chunk.Metadata.PublishedAt); ok {
			if ageInDays(now, publishedAt) > w.freshnessThresholdDays {
				outdatedCount++
			}
		}
	}

	result := WatchResult{
		Stale:            false,
		ChangedDocuments: 0,
		Reason:           ReasonNoChange,
	}
	switch {
	case hashMismatches > 0:
		result = WatchResult{
			Stale:            true,
			ChangedDocuments: hashMismatches,
			Reason:           ReasonHashMismatch,
		}
	case outdatedCount > 0:
		result = WatchResult{
			Stale:            true,
			ChangedDocuments: outdatedCount,
			Reason:           ReasonOutdated,
		}
	}

	w.logger.Info("staleness check completed",
		zap.Bool("stale", result.Stale),
		zap.Int("changed_documents", result.ChangedDocuments),
		zap.String("reason", string(result.Reason)),
	)

	return result
}
