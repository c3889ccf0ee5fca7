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

const maxGapQuestions = 7

// GapIdentification asks the model what the analysis so far fails to answer.
// The output is the question list that drives the reasoning stage.
type GapIdentification struct {
	model   contractx.ModelClient
	cfg     llmx.Config
	prompts promptx.PromptSet
}

func NewGapIdentification(model contractx.ModelClient, cfg llmx.Config, prompts promptx.PromptSet) *GapIdentification {
	return &GapIdentification{model: model, cfg: cfg, prompts: prompts}
}

func (s *GapIdentification) Name() string { return contractx.StageGapIdentification }
func (s *GapIdentification) Inputs() []string {
	return []string{contractx.KeyInitialSummary, contractx.KeySupplementalEvidence}
}
func (s *GapIdentification) Outputs() []string { return []string{contractx.KeyGaps} }

func (s *GapIdentification) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	summary, _ := pc.GetString(contractx.KeyInitialSummary)
	evidence, _ := pc.Get(contractx.KeySupplementalEvidence)

	prompt := fmt.Sprintf(s.prompts.GapIdentification, summary, describeEvidence(evidence))
	text, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System, prompt)
	if err != nil {
		return err
	}

	questions := parseQuestions(text)
	if len(questions) == 0 {
		return fmt.Errorf("%w: gap response contains no questions", contractx.ErrMalformed)
	}
	return pc.Set(contractx.KeyGaps, questions)
}

// parseQuestions keeps lines that actually ask something. The model is told
// one question per line, but numbering and bullets creep in anyway.
func parseQuestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789.) \t"))
		if line == "" || !strings.Contains(line, "?") {
			continue
		}
		out = append(out, line)
		if len(out) == maxGapQuestions {
			break
		}
	}
	return out
}

func describeEvidence(evidence any) string {
	m, ok := evidence.(map[string]any)
	if !ok || len(m) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, k := range sortedAnyKeys(m) {
		fmt.Fprintf(&b, "%s: %v\n", k, m[k])
	}
	return b.String()
}
