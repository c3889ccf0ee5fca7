package stages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	marketdatax "github.com/YenAle-FT-Gmail/yensense/marketdata"
	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

type fakeModel struct {
	calls   []contractx.ModelRequest
	respond func(req contractx.ModelRequest) (contractx.ModelResponse, error)
}

func (f *fakeModel) Invoke(ctx context.Context, req contractx.ModelRequest) (contractx.ModelResponse, error) {
	f.calls = append(f.calls, req)
	return f.respond(req)
}

func textModel(text string) *fakeModel {
	return &fakeModel{
		respond: func(contractx.ModelRequest) (contractx.ModelResponse, error) {
			return contractx.ModelResponse{Text: text}, nil
		},
	}
}

type fakeFetcher struct {
	responses map[string]map[string]any
	errs      map[string]error
	calls     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, domain string, params map[string]string) (map[string]any, error) {
	f.calls = append(f.calls, domain)
	if err := f.errs[domain]; err != nil {
		return nil, err
	}
	if data, ok := f.responses[domain]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("unknown domain %q", domain)
}

func testConfig() llmx.Config {
	return llmx.Config{
		Model:            "gpt-4o-mini",
		Temperature:      0.5,
		SummaryBudget:    800,
		EvidenceBudget:   400,
		GapBudget:        600,
		ReasoningBudget:  1200,
		ValidationBudget: 800,
		ReportBudget:     600,
		TitleBudget:      120,
	}
}

func testSnapshot() marketdatax.Snapshot {
	return marketdatax.Snapshot{
		FXRates: map[string]float64{"USD/JPY": 147.25, "EUR/JPY": 159.80},
		Macro:   map[string]float64{"japan_cpi": 2.8, "boj_rate": 0.25},
		News: []marketdatax.Headline{
			{Title: "BOJ holds rates steady", Source: "Nikkei"},
		},
		Calendar: []marketdatax.CalendarEvent{
			{Name: "CPI release", Date: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), Importance: "high"},
		},
		SentimentScore: 42,
		AsOf:           time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
	}
}

func newContext(t *testing.T, seed map[string]any) *statex.Context {
	t.Helper()
	pc := statex.New(time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC))
	for k, v := range seed {
		if err := pc.Set(k, v); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}
	return pc
}

func TestDataCollectionRendersSnapshot(t *testing.T) {
	t.Parallel()

	pc := newContext(t, map[string]any{contractx.KeySnapshot: testSnapshot()})
	if err := NewDataCollection().Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	summary, ok := pc.GetString(contractx.KeyRawDataSummary)
	if !ok {
		t.Fatal("raw_data_summary not written")
	}
	for _, want := range []string{"USD/JPY: 147.2500", "japan_cpi: 2.80", "BOJ holds rates steady", "CPI release", "42/100"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestDataCollectionRejectsEmptySnapshot(t *testing.T) {
	t.Parallel()

	pc := newContext(t, map[string]any{contractx.KeySnapshot: marketdatax.Snapshot{AsOf: time.Now()}})
	err := NewDataCollection().Run(context.Background(), pc)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if pc.Has(contractx.KeyRawDataSummary) {
		t.Fatal("summary written despite empty snapshot")
	}
}

func TestInitialSummaryCallsModel(t *testing.T) {
	t.Parallel()

	model := textModel("The yen weakened on widening rate differentials.")
	pc := newContext(t, map[string]any{contractx.KeyRawDataSummary: "USD/JPY at 147.25"})

	stage := NewInitialSummary(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := pc.GetString(contractx.KeyInitialSummary)
	if got != "The yen weakened on widening rate differentials." {
		t.Fatalf("unexpected summary: %q", got)
	}
	if len(model.calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(model.calls))
	}
	req := model.calls[0]
	if req.Stage != contractx.StageInitialSummary || req.Model != "gpt-4o-mini" || req.MaxTokens != 800 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if !strings.Contains(req.Prompt, "USD/JPY at 147.25") {
		t.Fatal("raw data not substituted into prompt")
	}
	if req.System == "" {
		t.Fatal("system prompt missing")
	}
}

func TestInitialSummaryMissingInput(t *testing.T) {
	t.Parallel()

	stage := NewInitialSummary(textModel("x"), testConfig(), promptx.LoadPromptSet())
	err := stage.Run(context.Background(), newContext(t, nil))
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestEvidenceGatheringToleratesFetchFailure(t *testing.T) {
	t.Parallel()

	model := textModel("Historical USD/JPY levels over the past year\nUS Treasury 10-year yields\nTokyo weather forecast")
	fetcher := &fakeFetcher{
		responses: map[string]map[string]any{
			marketdatax.DomainHistoricalFX: {"1m_ago": 145.10},
		},
		errs: map[string]error{
			marketdatax.DomainUSYields: errors.New("upstream 503"),
		},
	}
	pc := newContext(t, map[string]any{contractx.KeyInitialSummary: "yen weak"})

	stage := NewEvidenceGathering(model, fetcher, testConfig(), promptx.LoadPromptSet(), 1)
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	raw, _ := pc.Get(contractx.KeySupplementalEvidence)
	evidence := raw.(map[string]any)
	if _, ok := evidence[marketdatax.DomainHistoricalFX]; !ok {
		t.Fatalf("historical fx missing: %v", evidence)
	}
	unresolved, _ := evidence["unresolved_requests"].([]string)
	if len(unresolved) != 2 {
		t.Fatalf("expected fetch failure and unmapped request recorded, got %v", unresolved)
	}
	joined := strings.Join(unresolved, "\n")
	if !strings.Contains(joined, "upstream 503") || !strings.Contains(joined, "Tokyo weather") {
		t.Fatalf("unresolved entries wrong: %v", unresolved)
	}
}

func TestEvidenceGatheringRoundBound(t *testing.T) {
	t.Parallel()

	model := textModel("VIX volatility index level")
	fetcher := &fakeFetcher{
		responses: map[string]map[string]any{
			marketdatax.DomainVIX: {"level": 18.4},
		},
	}
	pc := newContext(t, map[string]any{contractx.KeyInitialSummary: "yen weak"})

	stage := NewEvidenceGathering(model, fetcher, testConfig(), promptx.LoadPromptSet(), 2)
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Round one gathers VIX, round two adds nothing new and stops.
	if len(model.calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(model.calls))
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("expected single fetch, got %v", fetcher.calls)
	}
}

func TestEvidenceGatheringModelErrorPropagates(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		respond: func(contractx.ModelRequest) (contractx.ModelResponse, error) {
			return contractx.ModelResponse{}, fmt.Errorf("%w: 503", contractx.ErrTransport)
		},
	}
	pc := newContext(t, map[string]any{contractx.KeyInitialSummary: "yen weak"})

	stage := NewEvidenceGathering(model, &fakeFetcher{}, testConfig(), promptx.LoadPromptSet(), 1)
	err := stage.Run(context.Background(), pc)
	if !errors.Is(err, contractx.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestGapIdentificationKeepsQuestions(t *testing.T) {
	t.Parallel()

	model := textModel("1. Why did the yen weaken despite BOJ tightening?\nThis is commentary, not a question.\n- How durable is the rate differential?")
	pc := newContext(t, map[string]any{
		contractx.KeyInitialSummary:       "yen weak",
		contractx.KeySupplementalEvidence: map[string]any{"vix": map[string]any{"level": 18.4}},
	})

	stage := NewGapIdentification(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	gaps, _ := pc.GetStringSlice(contractx.KeyGaps)
	want := []string{
		"Why did the yen weaken despite BOJ tightening?",
		"How durable is the rate differential?",
	}
	if len(gaps) != len(want) {
		t.Fatalf("gaps = %v", gaps)
	}
	for i := range want {
		if gaps[i] != want[i] {
			t.Fatalf("gaps[%d] = %q, want %q", i, gaps[i], want[i])
		}
	}
}

func TestGapIdentificationSingleQuestionPassesThrough(t *testing.T) {
	t.Parallel()

	model := textModel("What is driving USD/JPY this week?")
	pc := newContext(t, map[string]any{
		contractx.KeyInitialSummary:       "yen weak",
		contractx.KeySupplementalEvidence: map[string]any{"market_context": "none"},
	})

	stage := NewGapIdentification(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	gaps, _ := pc.GetStringSlice(contractx.KeyGaps)
	if len(gaps) != 1 || gaps[0] != "What is driving USD/JPY this week?" {
		t.Fatalf("gaps = %v", gaps)
	}
}

func TestGapIdentificationRejectsNoQuestions(t *testing.T) {
	t.Parallel()

	model := textModel("Everything looks fine. No further analysis needed.")
	pc := newContext(t, map[string]any{
		contractx.KeyInitialSummary:       "yen weak",
		contractx.KeySupplementalEvidence: map[string]any{"market_context": "none"},
	})

	stage := NewGapIdentification(model, testConfig(), promptx.LoadPromptSet())
	err := stage.Run(context.Background(), pc)
	if !errors.Is(err, contractx.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestReasoningParsesPlan(t *testing.T) {
	t.Parallel()

	response := strings.Join([]string{
		"Question 1: restated",
		"Analysis: Compare the 10Y spread against the 12-month average",
		"Data needed: US and Japan 10Y yields",
		"Insight: Whether carry still favors the dollar",
		"Expression: 4.10 - 0.25",
		"",
		"Question 2: restated",
		"Analysis: Assess intervention risk from MOF rhetoric",
		"Expression: none",
	}, "\n")
	model := textModel(response)
	gaps := []string{
		"How durable is the rate differential?",
		"Will the MOF intervene near 150?",
	}
	pc := newContext(t, map[string]any{contractx.KeyGaps: gaps})

	stage := NewReasoning(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	raw, _ := pc.Get(contractx.KeyReasoningPlan)
	plan := raw.([]contractx.PlanItem)
	if len(plan) != 2 {
		t.Fatalf("plan = %+v", plan)
	}
	if plan[0].Question != gaps[0] {
		t.Fatalf("plan[0].Question = %q", plan[0].Question)
	}
	if plan[0].Expression != "4.10 - 0.25" {
		t.Fatalf("plan[0].Expression = %q", plan[0].Expression)
	}
	if plan[1].Expression != "" {
		t.Fatalf("placeholder expression kept: %q", plan[1].Expression)
	}
	if plan[1].Analysis != "Assess intervention risk from MOF rhetoric" {
		t.Fatalf("plan[1].Analysis = %q", plan[1].Analysis)
	}
}

func TestReasoningRejectsUnstructuredResponse(t *testing.T) {
	t.Parallel()

	model := textModel("I think the yen will probably weaken further.")
	pc := newContext(t, map[string]any{contractx.KeyGaps: []string{"Why?"}})

	stage := NewReasoning(model, testConfig(), promptx.LoadPromptSet())
	err := stage.Run(context.Background(), pc)
	if !errors.Is(err, contractx.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestCalculationEvaluatesPlan(t *testing.T) {
	t.Parallel()

	plan := []contractx.PlanItem{
		{Question: "How wide is the spread?", Analysis: "subtract", Expression: "(4.10 - 0.25) * 100"},
		{Question: "What about intervention?", Analysis: "qualitative"},
		{Question: "Broken math?", Analysis: "divide", Expression: "1 / 0"},
	}
	evidence := map[string]any{
		"us_yields": map[string]any{"10Y": 4.10},
	}
	pc := newContext(t, map[string]any{
		contractx.KeyReasoningPlan:        plan,
		contractx.KeySupplementalEvidence: evidence,
	})

	if err := NewCalculation().Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	raw, _ := pc.Get(contractx.KeyCalculatedFindings)
	findings := raw.(map[string]any)

	if diff, ok := findings["us_jp_rate_differential_10y"].(float64); !ok || math.Abs(diff-3.85) > 1e-9 {
		t.Fatalf("rate differential = %v", findings["us_jp_rate_differential_10y"])
	}
	first := findings["analysis_1"].(map[string]any)
	if result, ok := first["result"].(float64); !ok || math.Abs(result-385) > 1e-9 {
		t.Fatalf("analysis_1 result = %v", first["result"])
	}
	second := findings["analysis_2"].(map[string]any)
	if _, hasResult := second["result"]; hasResult {
		t.Fatal("qualitative item should have no result")
	}
	third := findings["analysis_3"].(map[string]any)
	if third["error"] == nil || third["error"] == "" {
		t.Fatalf("division by zero not recorded: %v", third)
	}
	if findings["analyses_planned"] != 3 {
		t.Fatalf("analyses_planned = %v", findings["analyses_planned"])
	}
}

func TestValidationParsesVerdict(t *testing.T) {
	t.Parallel()

	response := strings.Join([]string{
		"Confidence Score (0-100): 35",
		"Major Issues:",
		"- The rate differential ignores hedging costs",
		"Minor Issues:",
		"- Sentiment score source is unclear",
		"Strengths:",
		"- Calculations are arithmetically correct",
		"Caveats:",
		"- Sample covers a single week of data",
	}, "\n")
	model := textModel(response)
	pc := newContext(t, map[string]any{
		contractx.KeyReasoningPlan:      []contractx.PlanItem{{Question: "q", Analysis: "a"}},
		contractx.KeyCalculatedFindings: map[string]any{"analysis_1": "x"},
	})

	stage := NewValidation(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	raw, _ := pc.Get(contractx.KeyValidatedConclusions)
	verdict := raw.(contractx.ValidationResult)
	if verdict.ConfidenceScore != 35 {
		t.Fatalf("ConfidenceScore = %d", verdict.ConfidenceScore)
	}
	if len(verdict.Issues) != 2 || !strings.HasPrefix(verdict.Issues[0], "MAJOR: ") || !strings.HasPrefix(verdict.Issues[1], "MINOR: ") {
		t.Fatalf("Issues = %v", verdict.Issues)
	}
	if len(verdict.Caveats) != 1 || verdict.Caveats[0] != "Sample covers a single week of data" {
		t.Fatalf("Caveats = %v", verdict.Caveats)
	}
	passed, _ := pc.GetBool(contractx.KeyValidationPassed)
	if passed {
		t.Fatal("verdict with a major issue and score 35 should not pass")
	}
}

func TestValidationUnstructuredResponseStillPasses(t *testing.T) {
	t.Parallel()

	model := textModel("Looks broadly reasonable to me.")
	pc := newContext(t, map[string]any{
		contractx.KeyReasoningPlan:      []contractx.PlanItem{{Question: "q", Analysis: "a"}},
		contractx.KeyCalculatedFindings: map[string]any{"analysis_1": "x"},
	})

	stage := NewValidation(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	raw, _ := pc.Get(contractx.KeyValidatedConclusions)
	verdict := raw.(contractx.ValidationResult)
	if verdict.ConfidenceScore != 70 {
		t.Fatalf("default ConfidenceScore = %d", verdict.ConfidenceScore)
	}
	if len(verdict.Caveats) == 0 {
		t.Fatal("unstructured verdict should carry a caveat about itself")
	}
	passed, _ := pc.GetBool(contractx.KeyValidationPassed)
	if !passed {
		t.Fatal("neutral verdict should pass")
	}
}

func TestReportGenerationSurfacesFailedValidation(t *testing.T) {
	t.Parallel()

	verdict := contractx.ValidationResult{
		ConfidenceScore: 35,
		Issues:          []string{"MAJOR: The rate differential ignores hedging costs"},
		Caveats:         []string{"Sample covers a single week of data"},
	}
	calls := 0
	model := &fakeModel{
		respond: func(req contractx.ModelRequest) (contractx.ModelResponse, error) {
			calls++
			switch calls {
			case 1:
				return contractx.ModelResponse{Text: "Executive summary text."}, nil
			case 2:
				return contractx.ModelResponse{Text: "- Finding 1: spreads matter."}, nil
			default:
				return contractx.ModelResponse{Text: "Yen Outlook: Caution Warranted\nextra line"}, nil
			}
		},
	}

	pc := newContext(t, map[string]any{
		contractx.KeyValidatedConclusions: verdict,
	})
	if err := pc.Set(contractx.KeyValidationPassed, false); err != nil {
		t.Fatalf("seed validation_passed: %v", err)
	}

	stage := NewReportGeneration(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	title, _ := pc.GetString(contractx.KeyReportTitle)
	if title != "Yen Outlook: Caution Warranted" {
		t.Fatalf("title = %q", title)
	}
	body, _ := pc.GetString(contractx.KeyReportBody)
	for _, want := range []string{
		"# Yen Outlook: Caution Warranted",
		"**Date:** August 21, 2026",
		"Executive summary text.",
		"- Finding 1: spreads matter.",
		"## Validation Caveats",
		"Sample covers a single week of data",
		"MAJOR: The rate differential ignores hedging costs",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if len(model.calls) != 3 {
		t.Fatalf("expected 3 model calls, got %d", len(model.calls))
	}
	// Title call runs on the tight title budget.
	if model.calls[2].MaxTokens != 120 {
		t.Fatalf("title budget = %d", model.calls[2].MaxTokens)
	}
}

func TestReportGenerationPassedVerdictHasNoCaveatBlock(t *testing.T) {
	t.Parallel()

	verdict := contractx.ValidationResult{
		ConfidenceScore: 85,
		Strengths:       []string{"well supported"},
	}
	model := textModel("clean section")
	pc := newContext(t, map[string]any{
		contractx.KeyValidatedConclusions: verdict,
		contractx.KeyValidationPassed:     true,
	})

	stage := NewReportGeneration(model, testConfig(), promptx.LoadPromptSet())
	if err := stage.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	body, _ := pc.GetString(contractx.KeyReportBody)
	if strings.Contains(body, "## Validation Caveats") {
		t.Fatalf("caveat block present for passed validation:\n%s", body)
	}
}

func TestCanonicalOrderAndKeyOwnership(t *testing.T) {
	t.Parallel()

	list := Canonical(textModel("x"), &fakeFetcher{}, testConfig(), 1)
	wantOrder := []string{
		contractx.StageDataCollection,
		contractx.StageInitialSummary,
		contractx.StageEvidenceGathering,
		contractx.StageGapIdentification,
		contractx.StageReasoning,
		contractx.StageCalculation,
		contractx.StageValidation,
		contractx.StageReportGeneration,
	}
	if len(list) != len(wantOrder) {
		t.Fatalf("expected %d stages, got %d", len(wantOrder), len(list))
	}
	owners := make(map[string]string)
	for i, st := range list {
		if st.Name() != wantOrder[i] {
			t.Fatalf("stage %d = %q, want %q", i, st.Name(), wantOrder[i])
		}
		for _, key := range st.Outputs() {
			if owner, taken := owners[key]; taken {
				t.Fatalf("key %q owned by both %s and %s", key, owner, st.Name())
			}
			owners[key] = st.Name()
		}
	}
}
