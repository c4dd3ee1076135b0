package pipeline

// Default thresholds for the decision pipeline. These are the calibrated
// production values; the constructors accept overrides through config.
const (
	DefaultMaxRetries               = 2
	DefaultTrustThreshold           = 0.65
	DefaultClaimSimilarityThreshold = 0.76
	DefaultFreshnessThresholdDays   = 180
	DefaultPartialRefreshThreshold  = 2
)

// Metadata is the optional descriptive payload attached to a chunk. Zero
// values mean the field was absent at the source.
type Metadata struct {
	Source      string `json:"source,omitempty"`
	DocID       string `json:"doc_id,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	Page        int    `json:"page,omitempty"`
}

// Chunk is a retrieved unit of source text. Score is a similarity: higher
// means more relevant. Retrieval normalizes every store-specific result into
// this record once, at the boundary; the pipeline never mutates a chunk.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

type Decision string

const (
	DecisionTrusted   Decision = "trusted"
	DecisionUntrusted Decision = "untrusted"
)

type ScoreComponents struct {
	Similarity     float64 `json:"similarity"`
	SourceScore    float64 `json:"source_score"`
	FreshnessScore float64 `json:"freshness_score"`
}

// ValidationResult is the trust decision for one answer. TrustScore is always
// in [0,1] and Decision is trusted iff TrustScore >= the trust threshold.
type ValidationResult struct {
	TrustScore float64         `json:"trust_score"`
	Decision   Decision        `json:"decision"`
	Components ScoreComponents `json:"components"`
}

type HallucinationResult struct {
	Hallucination     bool     `json:"hallucination"`
	UnsupportedClaims []string `json:"unsupported_claims"`
}

type RefreshType string

const (
	RefreshNone    RefreshType = "none"
	RefreshPartial RefreshType = "partial"
	RefreshFull    RefreshType = "full"
)

type RefreshResult struct {
	RefreshType      RefreshType `json:"refresh_type"`
	UpdatedDocuments int         `json:"updated_documents"`
	Status           string      `json:"status"`
}

type StaleReason string

const (
	ReasonHashMismatch StaleReason = "hash_mismatch"
	ReasonOutdated     StaleReason = "outdated"
	ReasonNoChange     StaleReason = "no_change"
)

type WatchResult struct {
	Stale            bool        `json:"stale"`
	ChangedDocuments int         `json:"changed_documents"`
	Reason           StaleReason `json:"reason"`
}

// PipelineState is owned by exactly one orchestration run. Each node writes
// only the field it produced; the state is discarded when the run returns.
type PipelineState struct {
	Query         string              `json:"query"`
	Documents     []Chunk             `json:"documents"`
	Answer        string              `json:"answer"`
	Validation    ValidationResult    `json:"validation"`
	Hallucination HallucinationResult `json:"hallucination"`
	RetryCount    int                 `json:"retry_count"`
}
