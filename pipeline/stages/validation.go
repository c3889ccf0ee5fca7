package stages

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// Validation runs the self-critique pass: a skeptical review of the plan and
// findings. A failed review does not fail the stage; the verdict is recorded
// and the report stage decides how to surface it.
type Validation struct {
	model   contractx.ModelClient
	cfg     llmx.Config
	prompts promptx.PromptSet
}

func NewValidation(model contractx.ModelClient, cfg llmx.Config, prompts promptx.PromptSet) *Validation {
	return &Validation{model: model, cfg: cfg, prompts: prompts}
}

func (s *Validation) Name() string { return contractx.StageValidation }
func (s *Validation) Inputs() []string {
	return []string{contractx.KeyCalculatedFindings, contractx.KeyReasoningPlan}
}
func (s *Validation) Outputs() []string {
	return []string{contractx.KeyValidatedConclusions, contractx.KeyValidationPassed}
}

func (s *Validation) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	rawPlan, _ := pc.Get(contractx.KeyReasoningPlan)
	plan, _ := rawPlan.([]contractx.PlanItem)
	rawFindings, _ := pc.Get(contractx.KeyCalculatedFindings)
	findings, _ := rawFindings.(map[string]any)

	prompt := fmt.Sprintf(s.prompts.Validation, renderAnalysis(plan, findings))
	text, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System, prompt)
	if err != nil {
		return err
	}

	result := parseValidation(text)
	if err := pc.Set(contractx.KeyValidatedConclusions, result); err != nil {
		return err
	}
	return pc.Set(contractx.KeyValidationPassed, result.Passed())
}

func renderAnalysis(plan []contractx.PlanItem, findings map[string]any) string {
	var b strings.Builder
	b.WriteString("Analysis plan:\n")
	for i, item := range plan {
		fmt.Fprintf(&b, "%d. %s\n   Approach: %s\n", i+1, item.Question, item.Analysis)
		if item.Insight != "" {
			fmt.Fprintf(&b, "   Expected insight: %s\n", item.Insight)
		}
	}
	b.WriteString("\nCalculated findings:\n")
	for _, k := range sortedAnyKeys(findings) {
		fmt.Fprintf(&b, "  %s: %v\n", k, findings[k])
	}
	return b.String()
}

var confidenceRe = regexp.MustCompile(`(\d{1,3})`)

// parseValidation reads the structured critique. Unparseable responses fall
// back to a neutral 70 score rather than killing the run; the model already
// answered, it just ignored the format.
func parseValidation(text string) contractx.ValidationResult {
	result := contractx.ValidationResult{ConfidenceScore: 70}

	section := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "confidence score") || strings.HasPrefix(lower, "confidence"):
			// Read after the last colon so the "(0-100)" range in an echoed
			// label is not mistaken for the score.
			value := line
			if i := strings.LastIndex(line, ":"); i >= 0 {
				value = line[i+1:]
			}
			if m := confidenceRe.FindString(value); m != "" {
				if score, err := strconv.Atoi(m); err == nil && score >= 0 && score <= 100 {
					result.ConfidenceScore = score
				}
			}
			section = ""
			continue
		case strings.Contains(lower, "major issue"):
			section = "major"
			continue
		case strings.Contains(lower, "minor issue"):
			section = "minor"
			continue
		case strings.Contains(lower, "strength"):
			section = "strengths"
			continue
		case strings.Contains(lower, "caveat"):
			section = "caveats"
			continue
		}

		entry, ok := strings.CutPrefix(line, "-")
		if !ok {
			continue
		}
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.EqualFold(entry, "none") {
			continue
		}
		switch section {
		case "major":
			result.Issues = append(result.Issues, "MAJOR: "+entry)
		case "minor":
			result.Issues = append(result.Issues, "MINOR: "+entry)
		case "strengths":
			result.Strengths = append(result.Strengths, entry)
		case "caveats":
			result.Caveats = append(result.Caveats, entry)
		}
	}

	if len(result.Issues) == 0 && len(result.Strengths) == 0 {
		result.Strengths = append(result.Strengths, "analysis completed without detected errors")
		result.Caveats = append(result.Caveats, "validation response was unstructured; verdict is approximate")
	}
	return result
}
