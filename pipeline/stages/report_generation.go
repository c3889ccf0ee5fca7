package stages

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// ReportGeneration assembles the final markdown report: model-written
// executive summary and key findings under a deterministic header, plus a
// mandatory caveat block whenever the validation verdict was negative. The
// title comes from a separate, tightly budgeted model call.
type ReportGeneration struct {
	model   contractx.ModelClient
	cfg     llmx.Config
	prompts promptx.PromptSet
}

func NewReportGeneration(model contractx.ModelClient, cfg llmx.Config, prompts promptx.PromptSet) *ReportGeneration {
	return &ReportGeneration{model: model, cfg: cfg, prompts: prompts}
}

func (s *ReportGeneration) Name() string { return contractx.StageReportGeneration }
func (s *ReportGeneration) Inputs() []string {
	return []string{contractx.KeyValidatedConclusions, contractx.KeyValidationPassed}
}
func (s *ReportGeneration) Outputs() []string {
	return []string{contractx.KeyReportTitle, contractx.KeyReportBody}
}

func (s *ReportGeneration) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	raw, _ := pc.Get(contractx.KeyValidatedConclusions)
	verdict, ok := raw.(contractx.ValidationResult)
	if !ok {
		return fmt.Errorf("%w: key %q holds %T, want contract.ValidationResult", contractx.ErrValidation, contractx.KeyValidatedConclusions, raw)
	}
	passed, _ := pc.GetBool(contractx.KeyValidationPassed)
	conclusions := renderVerdict(verdict)

	summary, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System,
		fmt.Sprintf(s.prompts.ReportSummary, conclusions))
	if err != nil {
		return err
	}
	findings, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System,
		fmt.Sprintf(s.prompts.ReportFindings, conclusions))
	if err != nil {
		return err
	}
	title, err := invokeModelBudget(ctx, s.model, s.cfg, s.Name(), s.prompts.System,
		fmt.Sprintf(s.prompts.ReportTitle, summary), s.cfg.TitleBudget)
	if err != nil {
		return err
	}
	title = firstLine(title)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Date:** %s\n\n", pc.RunDate.Format("January 2, 2006"))
	fmt.Fprintf(&b, "**Analysis confidence:** %d/100\n\n", verdict.ConfidenceScore)
	b.WriteString("## Executive Summary\n\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\n## Key Findings\n\n")
	b.WriteString(strings.TrimSpace(findings))
	b.WriteString("\n")

	if !passed {
		b.WriteString("\n## Validation Caveats\n\n")
		b.WriteString("The internal review of this analysis did not pass. Read the conclusions below with the following in mind:\n\n")
		for _, issue := range verdict.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		for _, caveat := range verdict.Caveats {
			fmt.Fprintf(&b, "- %s\n", caveat)
		}
	}

	if err := pc.Set(contractx.KeyReportTitle, title); err != nil {
		return err
	}
	return pc.Set(contractx.KeyReportBody, b.String())
}

func renderVerdict(v contractx.ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Confidence score: %d/100\n", v.ConfidenceScore)
	writeList(&b, "Issues", v.Issues)
	writeList(&b, "Strengths", v.Strengths)
	writeList(&b, "Caveats", v.Caveats)
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.Trim(strings.TrimSpace(text), `"`)
}
