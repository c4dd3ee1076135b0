package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/pkg/logger"
)

// Evaluator replays a dataset of queries through the full pipeline and
// aggregates the trust decisions. It exercises the same orchestrator the API
// serves, so the report reflects production routing.
type Evaluator struct {
	orchestrator *pipeline.Orchestrator
}

type EvaluationDataset struct {
	Items []DatasetItem
}

type DatasetItem struct {
	Query    string
	Category string
}

type EvaluationReport struct {
	TotalQueries            int
	TrustedCount            int
	HallucinatedCount       int
	LowConfidenceCount      int
	AvgTrustScore           float64
	AvgRetryCount           float64
	AvgUnsupportedClaims    float64
	TrustedPercentage       float64
	HallucinatedPercentage  float64
	LowConfidencePercentage float64
}

func NewEvaluator(orchestrator *pipeline.Orchestrator) *Evaluator {
	return &Evaluator{
		orchestrator: orchestrator,
	}
}

// EvaluateQuery runs one query through the pipeline and classifies the
// outcome the same way the API does.
func (e *Evaluator) EvaluateQuery(ctx context.Context, query string) (*pipeline.PipelineState, string, error) {
	st, err := e.orchestrator.Run(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline run failed: %w", err)
	}

	classification := "low_confidence"
	if st.Validation.Decision == pipeline.DecisionTrusted {
		classification = "trusted"
	} else if st.Hallucination.Hallucination {
		classification = "hallucinated"
	}

	return st, classification, nil
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *EvaluationDataset) (*EvaluationReport, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &EvaluationReport{
		TotalQueries: len(dataset.Items),
	}

	var totalTrust, totalRetries, totalUnsupported float64

	for i, item := range dataset.Items {
		logger.Info("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		st, classification, err := e.EvaluateQuery(ctx, item.Query)
		if err != nil {
			logger.Error("Failed to evaluate query", zap.String("query", item.Query), zap.Error(err))
			continue
		}

		switch classification {
		case "trusted":
			report.TrustedCount++
		case "hallucinated":
			report.HallucinatedCount++
		case "low_confidence":
			report.LowConfidenceCount++
		}

		totalTrust += st.Validation.TrustScore
		totalRetries += float64(st.RetryCount)
		totalUnsupported += float64(len(st.Hallucination.UnsupportedClaims))
	}

	if report.TotalQueries > 0 {
		n := float64(report.TotalQueries)
		report.AvgTrustScore = totalTrust / n
		report.AvgRetryCount = totalRetries / n
		report.AvgUnsupportedClaims = totalUnsupported / n

		report.TrustedPercentage = float64(report.TrustedCount) / n * 100
		report.HallucinatedPercentage = float64(report.HallucinatedCount) / n * 100
		report.LowConfidencePercentage = float64(report.LowConfidenceCount) / n * 100
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("trusted", report.TrustedCount),
		zap.Int("hallucinated", report.HallucinatedCount),
		zap.Int("low_confidence", report.LowConfidenceCount),
	)

	return report, nil
}

func (e *Evaluator) LoadDatasetFromJSON(jsonData string) (*EvaluationDataset, error) {
	var dataset EvaluationDataset
	err := json.Unmarshal([]byte(jsonData), &dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}

	return &dataset, nil
}

func (e *Evaluator) GenerateReport(report *EvaluationReport) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Queries: %d

Outcomes:
- Trusted: %d (%.1f%%)
- Hallucinated: %d (%.1f%%)
- Low Confidence: %d (%.1f%%)

Averages:
- Trust Score: %.3f
- Retry Count: %.2f
- Unsupported Claims: %.2f
`,
		report.TotalQueries,
		report.TrustedCount, report.TrustedPercentage,
		report.HallucinatedCount, report.HallucinatedPercentage,
		report.LowConfidenceCount, report.LowConfidencePercentage,
		report.AvgTrustScore,
		report.AvgRetryCount,
		report.AvgUnsupportedClaims,
	)
}
