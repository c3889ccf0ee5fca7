package llm

import (
	"sync/atomic"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
)

// UsageMeter accumulates token usage across all model calls in the process.
// Safe for concurrent runs; counters are atomic.
type UsageMeter struct {
	prompt     atomic.Int64
	completion atomic.Int64
	reasoning  atomic.Int64
	total      atomic.Int64
	calls      atomic.Int64
}

func (m *UsageMeter) Add(u contractx.TokenUsage) {
	if m == nil {
		return
	}
	m.prompt.Add(u.Prompt)
	m.completion.Add(u.Completion)
	m.reasoning.Add(u.Reasoning)
	m.total.Add(u.Total)
	m.calls.Add(1)
}

func (m *UsageMeter) Snapshot() contractx.TokenUsage {
	if m == nil {
		return contractx.TokenUsage{}
	}
	return contractx.TokenUsage{
		Prompt:     m.prompt.Load(),
		Completion: m.completion.Load(),
		Reasoning:  m.reasoning.Load(),
		Total:      m.total.Load(),
	}
}

func (m *UsageMeter) Calls() int64 {
	if m == nil {
		return 0
	}
	return m.calls.Load()
}
