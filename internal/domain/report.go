package domain

import "time"

// Evaluation modes, used for report records and metric labels.
const (
	ModeSingleVector = "single_vector"
	ModeMultiVector  = "multi_vector"
	ModeRunOnly      = "run_only"
)

// EvaluationReport is the persisted outcome of one evaluation run.
type EvaluationReport struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	Mode         string             `json:"mode"`
	KValues      []int              `json:"k_values"`
	NumQueries   int                `json:"num_queries"`
	NumPassages  int                `json:"num_passages"`
	Top1Accuracy float64            `json:"top1_accuracy"`
	TotalTokens  int                `json:"total_tokens,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
}
