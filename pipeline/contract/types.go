package contract

import (
	"strings"
	"time"
)

// ModelRequest is one structured call to the LLM endpoint.
type ModelRequest struct {
	Stage     string `json:"stage"`
	Model     string `json:"model"`
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int64  `json:"max_tokens"`
}

type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Reasoning  int64 `json:"reasoning"`
	Total      int64 `json:"total"`
}

type ModelResponse struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"usage"`
}

type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusRetried   StageStatus = "retried"
)

// Attempt is one entry of the per-run execution log, one per stage attempt
// including retries.
type Attempt struct {
	Stage     string      `json:"stage"`
	Status    StageStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// PlanItem is one entry of the reasoning plan: what analysis answers one
// identified gap. Expression, when present, is a plain arithmetic expression
// the calculation stage evaluates deterministically.
type PlanItem struct {
	Question   string `json:"question"`
	Analysis   string `json:"analysis"`
	DataNeeded string `json:"data_needed,omitempty"`
	Insight    string `json:"insight,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// ValidationResult is the self-critique verdict over the analysis.
type ValidationResult struct {
	ConfidenceScore int      `json:"confidence_score"`
	Issues          []string `json:"issues,omitempty"`
	Strengths       []string `json:"strengths,omitempty"`
	Caveats         []string `json:"caveats,omitempty"`
}

// Passed reports whether the analysis survives its own critique: a workable
// confidence score and no major issue.
func (v ValidationResult) Passed() bool {
	if v.ConfidenceScore < 50 {
		return false
	}
	for _, issue := range v.Issues {
		if strings.HasPrefix(issue, "MAJOR") {
			return false
		}
	}
	return true
}
