package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	marketdatax "github.com/YenAle-FT-Gmail/yensense/marketdata"
	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	promptx "github.com/YenAle-FT-Gmail/yensense/pipeline/prompt"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

const maxRequestsPerRound = 5

// EvidenceGathering asks the model what supplemental data would strengthen
// the initial summary, maps each request onto a known feed domain and pulls
// it. Fetch failures never fail the stage; they are recorded inside the
// evidence so later stages can treat them as gaps.
type EvidenceGathering struct {
	model     contractx.ModelClient
	fetcher   contractx.Fetcher
	cfg       llmx.Config
	prompts   promptx.PromptSet
	maxRounds int
}

func NewEvidenceGathering(model contractx.ModelClient, fetcher contractx.Fetcher, cfg llmx.Config, prompts promptx.PromptSet, maxRounds int) *EvidenceGathering {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &EvidenceGathering{model: model, fetcher: fetcher, cfg: cfg, prompts: prompts, maxRounds: maxRounds}
}

func (s *EvidenceGathering) Name() string     { return contractx.StageEvidenceGathering }
func (s *EvidenceGathering) Inputs() []string { return []string{contractx.KeyInitialSummary} }
func (s *EvidenceGathering) Outputs() []string {
	return []string{contractx.KeySupplementalEvidence}
}

func (s *EvidenceGathering) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	summary, _ := pc.GetString(contractx.KeyInitialSummary)

	evidence := make(map[string]any)
	var unresolved []string

	for round := 0; round < s.maxRounds; round++ {
		prompt := fmt.Sprintf(s.prompts.EvidenceRequest, summary, gatheredList(evidence))
		text, err := invokeModel(ctx, s.model, s.cfg, s.Name(), s.prompts.System, prompt)
		if err != nil {
			return err
		}

		added := 0
		for _, req := range parseEvidenceRequests(text) {
			domain, ok := evidenceDomain(req)
			if !ok {
				unresolved = append(unresolved, fmt.Sprintf("no data source for: %s", req))
				continue
			}
			if _, have := evidence[domain]; have {
				continue
			}
			data, err := s.fetcher.Fetch(ctx, domain, nil)
			if err != nil {
				log.Warn().Err(err).Str("domain", domain).Msg("evidence fetch failed")
				unresolved = append(unresolved, fmt.Sprintf("fetch failed for %s: %v", domain, err))
				continue
			}
			evidence[domain] = data
			added++
		}
		if added == 0 {
			break
		}
	}

	if len(unresolved) > 0 {
		evidence["unresolved_requests"] = unresolved
	}
	if len(evidence) == 0 {
		evidence["market_context"] = "no supplemental evidence was requested"
	}
	return pc.Set(contractx.KeySupplementalEvidence, evidence)
}

// parseEvidenceRequests extracts one request per non-empty line, stripping
// bullet markers, capped so a rambling response cannot flood the feed.
func parseEvidenceRequests(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. \t"))
		if line == "" || strings.EqualFold(line, "none") {
			continue
		}
		out = append(out, line)
		if len(out) == maxRequestsPerRound {
			break
		}
	}
	return out
}

// evidenceDomain maps a free-text request onto a feed domain by keyword.
func evidenceDomain(request string) (string, bool) {
	lower := strings.ToLower(request)
	switch {
	case strings.Contains(lower, "historical") && (strings.Contains(lower, "usd/jpy") || strings.Contains(lower, "usdjpy") || strings.Contains(lower, "yen")):
		return marketdatax.DomainHistoricalFX, true
	case strings.Contains(lower, "treasury") || strings.Contains(lower, "us yield") || strings.Contains(lower, "u.s. yield") || strings.Contains(lower, "10-year") || strings.Contains(lower, "10 year"):
		return marketdatax.DomainUSYields, true
	case strings.Contains(lower, "oil") || strings.Contains(lower, "crude") || strings.Contains(lower, "energy price"):
		return marketdatax.DomainOilPrices, true
	case strings.Contains(lower, "vix") || strings.Contains(lower, "volatility"):
		return marketdatax.DomainVIX, true
	case strings.Contains(lower, "boj") || strings.Contains(lower, "bank of japan") || strings.Contains(lower, "policy rate"):
		return marketdatax.DomainBOJPolicy, true
	}
	return "", false
}

func gatheredList(evidence map[string]any) string {
	if len(evidence) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
