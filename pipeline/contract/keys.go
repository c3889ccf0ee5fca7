package contract

// Canonical stage names, in required order.
const (
	StageDataCollection    = "data_collection"
	StageInitialSummary    = "initial_summary"
	StageEvidenceGathering = "evidence_gathering"
	StageGapIdentification = "gap_identification"
	StageReasoning         = "reasoning"
	StageCalculation       = "calculation"
	StageValidation        = "validation"
	StageReportGeneration  = "report_generation"
)

// Context keys. KeySnapshot is seeded by the caller; every other key is
// owned by exactly one stage.
const (
	KeySnapshot             = "market_snapshot"
	KeyRawDataSummary       = "raw_data_summary"
	KeyInitialSummary       = "initial_summary"
	KeySupplementalEvidence = "supplemental_evidence"
	KeyGaps                 = "gaps"
	KeyReasoningPlan        = "reasoning_plan"
	KeyCalculatedFindings   = "calculated_findings"
	KeyValidatedConclusions = "validated_conclusions"
	KeyValidationPassed     = "validation_passed"
	KeyReportTitle          = "report_title"
	KeyReportBody           = "report_body"
)
