package llm

import (
	"fmt"
	"strings"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
)

// Config resolves the model and token budget for each model-calling stage.
// Stage-specific overrides fall back to the defaults, so a single cheap
// model can serve the whole pipeline while the report stage runs something
// stronger.
type Config struct {
	Model       string  `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini"`
	Temperature float32 `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`

	SummaryModel    string `envconfig:"SUMMARY_MODEL" split_words:"true"`
	EvidenceModel   string `envconfig:"EVIDENCE_MODEL" split_words:"true"`
	GapModel        string `envconfig:"GAP_MODEL" split_words:"true"`
	ReasoningModel  string `envconfig:"REASONING_MODEL" split_words:"true"`
	ValidationModel string `envconfig:"VALIDATION_MODEL" split_words:"true"`
	ReportModel     string `envconfig:"REPORT_MODEL" split_words:"true"`

	SummaryBudget    int64 `envconfig:"SUMMARY_BUDGET" split_words:"true" default:"800"`
	EvidenceBudget   int64 `envconfig:"EVIDENCE_BUDGET" split_words:"true" default:"400"`
	GapBudget        int64 `envconfig:"GAP_BUDGET" split_words:"true" default:"600"`
	ReasoningBudget  int64 `envconfig:"REASONING_BUDGET" split_words:"true" default:"1200"`
	ValidationBudget int64 `envconfig:"VALIDATION_BUDGET" split_words:"true" default:"800"`
	ReportBudget     int64 `envconfig:"REPORT_BUDGET" split_words:"true" default:"600"`
	TitleBudget      int64 `envconfig:"TITLE_BUDGET" split_words:"true" default:"120"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// ModelFor returns the model identifier for a stage, falling back to the
// default model.
func (c Config) ModelFor(stage string) string {
	override := ""
	switch stage {
	case contractx.StageInitialSummary:
		override = c.SummaryModel
	case contractx.StageEvidenceGathering:
		override = c.EvidenceModel
	case contractx.StageGapIdentification:
		override = c.GapModel
	case contractx.StageReasoning:
		override = c.ReasoningModel
	case contractx.StageValidation:
		override = c.ValidationModel
	case contractx.StageReportGeneration:
		override = c.ReportModel
	}
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return strings.TrimSpace(c.Model)
}

// BudgetFor returns the completion-token budget for a stage.
func (c Config) BudgetFor(stage string) int64 {
	switch stage {
	case contractx.StageInitialSummary:
		return c.SummaryBudget
	case contractx.StageEvidenceGathering:
		return c.EvidenceBudget
	case contractx.StageGapIdentification:
		return c.GapBudget
	case contractx.StageReasoning:
		return c.ReasoningBudget
	case contractx.StageValidation:
		return c.ValidationBudget
	case contractx.StageReportGeneration:
		return c.ReportBudget
	default:
		return c.SummaryBudget
	}
}
