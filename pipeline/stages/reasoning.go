package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// Reasoning turns the gap questions into a structured analysis plan: for
// each question, how to analyze it, what data it needs, the expected insight
// and optionally an arithmetic expression the calculation stage can evaluate.
type Reasoning struct {
	model   contractx.ModelClient
	cfg     llmx.Config
	prompts promptx.PromptSet
}

func NewReasoning(model contractx.ModelClient, cfg llmx.Config, prompts promptx.PromptSet) *Reasoning {
	return &Reasoning{model: model, cfg: cfg, prompts: prompts}
}

func (s *Reasoning) Name() string      { return contractx.StageReasoning }
func (s *Reasoning) Inputs() []string  { return []string{contractx.KeyGaps} }
func (s *Reasoning) Outputs() []string { return []string{contractx.KeyReasoningPlan} }

func (s *Reasoning) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	gaps, _ := pc.GetStringSlice(contractx.KeyGaps)

	var numbered strings.Builder
	for i, q := range gaps {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, q)
	}
	prompt := fmt.Sprintf(s.prompts.ReasoningPlan, numbered.String())
	text, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System, prompt)
	if err != nil {
		return err
	}

	plan := parsePlan(text, gaps)
	if len(plan) == 0 {
		return fmt.Errorf("%w: reasoning response contains no plan sections", contractx.ErrMalformed)
	}
	return pc.Set(contractx.KeyReasoningPlan, plan)
}

// parsePlan splits the response into "Question N" sections and reads the
// labeled fields of each. The question text itself is taken from the gap
// list when available so plan entries stay aligned with what was asked.
func parsePlan(text string, gaps []string) []contractx.PlanItem {
	var plan []contractx.PlanItem
	var current *contractx.PlanItem

	flush := func() {
		if current == nil {
			return
		}
		if current.Analysis == "" {
			current.Analysis = "Compare current levels to recent historical averages"
		}
		plan = append(plan, *current)
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "question"):
			flush()
			item := contractx.PlanItem{Question: afterColon(line)}
			if idx := len(plan); idx < len(gaps) {
				item.Question = gaps[idx]
			}
			current = &item
		case current == nil:
			continue
		case strings.HasPrefix(lower, "analysis"):
			current.Analysis = afterColon(line)
		case strings.HasPrefix(lower, "data needed"):
			current.DataNeeded = afterColon(line)
		case strings.HasPrefix(lower, "insight"):
			current.Insight = afterColon(line)
		case strings.HasPrefix(lower, "expression"):
			current.Expression = cleanExpression(afterColon(line))
		}
	}
	flush()
	return plan
}

func afterColon(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return strings.TrimSpace(line)
}

// cleanExpression drops placeholder answers like "none" or "n/a" so the
// calculation stage only sees things worth evaluating.
func cleanExpression(expr string) string {
	switch strings.ToLower(expr) {
	case "", "none", "n/a", "na", "-":
		return ""
	}
	return expr
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
