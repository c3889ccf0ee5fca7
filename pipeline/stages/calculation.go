package stages

import (
	"context"
	"fmt"

	calcx "github.com/YenAle-FT-Gmail/yensense/pipeline/calc"
	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// Approximate 10-year JGB yield under yield curve control, used when the
// evidence feed carries US yields but no Japanese leg.
const jgb10YApprox = 0.25

// Calculation evaluates the quantitative parts of the reasoning plan. No
// model call: expressions are run through the arithmetic evaluator, and a
// few standing metrics are derived directly from the gathered evidence.
type Calculation struct{}

func NewCalculation() *Calculation { return &Calculation{} }

func (s *Calculation) Name() string { return contractx.StageCalculation }
func (s *Calculation) Inputs() []string {
	return []string{contractx.KeyReasoningPlan, contractx.KeySupplementalEvidence}
}
func (s *Calculation) Outputs() []string { return []string{contractx.KeyCalculatedFindings} }

func (s *Calculation) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	rawPlan, _ := pc.Get(contractx.KeyReasoningPlan)
	plan, ok := rawPlan.([]contractx.PlanItem)
	if !ok {
		return fmt.Errorf("%w: key %q holds %T, want []contract.PlanItem", contractx.ErrValidation, contractx.KeyReasoningPlan, rawPlan)
	}
	rawEvidence, _ := pc.Get(contractx.KeySupplementalEvidence)
	evidence, _ := rawEvidence.(map[string]any)

	findings := make(map[string]any)
	findings["analyses_planned"] = len(plan)

	if diff, ok := rateDifferential(evidence); ok {
		findings["us_jp_rate_differential_10y"] = diff
	}

	for i, item := range plan {
		entry := map[string]any{
			"question": item.Question,
			"analysis": item.Analysis,
		}
		if item.Expression != "" {
			entry["expression"] = item.Expression
			if result, err := calcx.Evaluate(item.Expression); err != nil {
				entry["error"] = err.Error()
			} else {
				entry["result"] = result
			}
		}
		if item.Insight != "" {
			entry["expected_insight"] = item.Insight
		}
		findings[fmt.Sprintf("analysis_%d", i+1)] = entry
	}

	return pc.Set(contractx.KeyCalculatedFindings, findings)
}

// rateDifferential derives the 10Y US-Japan spread when the evidence carries
// a US yields block.
func rateDifferential(evidence map[string]any) (float64, bool) {
	yields, ok := evidence["us_yields"].(map[string]any)
	if !ok {
		return 0, false
	}
	tenYear, ok := yields["10Y"].(float64)
	if !ok {
		return 0, false
	}
	return tenYear - jgb10YApprox, true
}
