package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	marketdatax "github.com/YenAle-FT-Gmail/yensense/marketdata"
	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

// DataCollection renders the seeded market snapshot into a plain-text digest
// for the downstream model stages. No model call; an empty snapshot aborts
// the run because every later stage would be reasoning about nothing.
type DataCollection struct{}

func NewDataCollection() *DataCollection { return &DataCollection{} }

func (s *DataCollection) Name() string      { return contractx.StageDataCollection }
func (s *DataCollection) Inputs() []string  { return []string{contractx.KeySnapshot} }
func (s *DataCollection) Outputs() []string { return []string{contractx.KeyRawDataSummary} }

func (s *DataCollection) Run(ctx context.Context, pc *statex.Context) error {
	if err := requireInputs(pc, s.Name(), s.Inputs()...); err != nil {
		return err
	}
	raw, _ := pc.Get(contractx.KeySnapshot)
	snap, ok := raw.(marketdatax.Snapshot)
	if !ok {
		return fmt.Errorf("%w: key %q holds %T, want marketdata.Snapshot", contractx.ErrValidation, contractx.KeySnapshot, raw)
	}
	if snap.Empty() {
		return fmt.Errorf("%w: market snapshot is empty, nothing to analyze", contractx.ErrValidation)
	}
	return pc.Set(contractx.KeyRawDataSummary, renderSnapshot(snap))
}

func renderSnapshot(snap marketdatax.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market data as of %s\n\n", snap.AsOf.Format("2006-01-02"))

	if len(snap.FXRates) > 0 {
		b.WriteString("FX rates:\n")
		for _, pair := range sortedKeys(snap.FXRates) {
			fmt.Fprintf(&b, "  %s: %.4f\n", pair, snap.FXRates[pair])
		}
		b.WriteString("\n")
	}
	if len(snap.Macro) > 0 {
		b.WriteString("Macro indicators:\n")
		for _, name := range sortedKeys(snap.Macro) {
			fmt.Fprintf(&b, "  %s: %.2f\n", name, snap.Macro[name])
		}
		b.WriteString("\n")
	}
	if len(snap.News) > 0 {
		b.WriteString("Recent headlines:\n")
		for _, h := range snap.News {
			fmt.Fprintf(&b, "  - %s (%s)\n", h.Title, h.Source)
		}
		b.WriteString("\n")
	}
	if len(snap.Calendar) > 0 {
		b.WriteString("Upcoming events:\n")
		for _, ev := range snap.Calendar {
			fmt.Fprintf(&b, "  - %s on %s [%s]\n", ev.Name, ev.Date.Format("2006-01-02"), ev.Importance)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "News sentiment score: %d/100\n", snap.SentimentScore)
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
