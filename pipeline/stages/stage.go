// Package stages implements the eight analysis stages. Each stage declares
// the context keys it reads and writes and is unaware of the others; the
// orchestrator owns ordering and failure policy.
package stages

import (
	"context"
	"fmt"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// Stage is one named unit of the pipeline. Run reads declared inputs off the
// context and writes exactly the declared outputs. Stateless between
// invocations; a retry re-runs against the same input keys.
type Stage interface {
	Name() string
	Inputs() []string
	Outputs() []string
	Run(ctx context.Context, pc *statex.Context) error
}

// Canonical returns the eight stages in required order.
func Canonical(model contractx.ModelClient, fetcher contractx.Fetcher, cfg llmx.Config, fetchRounds int) []Stage {
	prompts := promptx.LoadPromptSet()
	return []Stage{
		NewDataCollection(),
		NewInitialSummary(model, cfg, prompts),
		NewEvidenceGathering(model, fetcher, cfg, prompts, fetchRounds),
		NewGapIdentification(model, cfg, prompts),
		NewReasoning(model, cfg, prompts),
		NewCalculation(),
		NewValidation(model, cfg, prompts),
		NewReportGeneration(model, cfg, prompts),
	}
}

// requireInputs guards the programming contract: the orchestrator must never
// start a stage whose inputs are absent, so a missing key here is a bug, not
// a user-facing condition.
func requireInputs(pc *statex.Context, stage string, keys ...string) error {
	for _, key := range keys {
		if !pc.Has(key) {
			return fmt.Errorf("%w: stage %s requires key %q", contractx.ErrValidation, stage, key)
		}
	}
	return nil
}

func invokeModel(ctx context.Context, model contractx.ModelClient, cfg llmx.Config, stage, system, prompt string) (string, error) {
	return invokeModelBudget(ctx, model, cfg, stage, system, prompt, cfg.BudgetFor(stage))
}

func invokeModelBudget(ctx context.Context, model contractx.ModelClient, cfg llmx.Config, stage, system, prompt string, budget int64) (string, error) {
	resp, err := model.Invoke(ctx, contractx.ModelRequest{
		Stage:     stage,
		Model:     cfg.ModelFor(stage),
		System:    system,
		Prompt:    prompt,
		MaxTokens: budget,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
