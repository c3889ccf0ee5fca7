package stages

import (
	"context"
	"fmt"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// InitialSummary turns the raw data digest into a first factual read of the
// market, before any evidence gathering or deeper reasoning.
type InitialSummary struct {
	model   contractx.ModelClient
	cfg     llmx.Config
	prompts promptx.PromptSet
}

func NewInitialSummary(model contractx.ModelClient, cfg llmx.Config, prompts promptx.PromptSet) *InitialSummary {
	return &InitialSummary{model: model, cfg: cfg, prompts: prompts}
}

func (s *InitialSummary) Name() string      { return contractx.StageInitialSummary }
func (s *InitialSummary) Inputs() []string  { return []string{contractx.KeyRawDataSummary} }
func (s *InitialSummary) Outputs() []string { return []string{contractx.KeyInitialSummary} }

func (s *InitialSummary) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	raw, _ := pc.GetString(contractx.KeyRawDataSummary)
	prompt := fmt.Sprintf(s.prompts.InitialSummary, raw)
	text, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System, prompt)
	if err != nil {
		return err
	}
	return pc.Set(contractx.KeyInitialSummary, text)
}
