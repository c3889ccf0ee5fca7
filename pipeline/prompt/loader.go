package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/initial_summary.txt
	initialSummaryRaw string

	//go:embed template/evidence_request.txt
	evidenceRequestRaw string

	//go:embed template/gap_identification.txt
	gapIdentificationRaw string

	//go:embed template/reasoning_plan.txt
	reasoningPlanRaw string

	//go:embed template/validation.txt
	validationRaw string

	//go:embed template/report_summary.txt
	reportSummaryRaw string

	//go:embed template/report_findings.txt
	reportFindingsRaw string

	//go:embed template/report_title.txt
	reportTitleRaw string
)

// PromptSet holds loaded prompt content. Templates are fmt.Sprintf format
// strings; each stage owns its substitution.
type PromptSet struct {
	System            string
	InitialSummary    string
	EvidenceRequest   string
	GapIdentification string
	ReasoningPlan     string
	Validation        string
	ReportSummary     string
	ReportFindings    string
	ReportTitle       string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time, trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System:            strings.TrimSpace(systemRaw),
		InitialSummary:    strings.TrimSpace(initialSummaryRaw),
		EvidenceRequest:   strings.TrimSpace(evidenceRequestRaw),
		GapIdentification: strings.TrimSpace(gapIdentificationRaw),
		ReasoningPlan:     strings.TrimSpace(reasoningPlanRaw),
		Validation:        strings.TrimSpace(validationRaw),
		ReportSummary:     strings.TrimSpace(reportSummaryRaw),
		ReportFindings:    strings.TrimSpace(reportFindingsRaw),
		ReportTitle:       strings.TrimSpace(reportTitleRaw),
	}
}
