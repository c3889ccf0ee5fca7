// Package marketdata defines the seed snapshot the pipeline consumes and the
// narrow HTTP collaborator that fetches it. The pipeline itself treats both
// as opaque input.
package marketdata

import "time"

// Snapshot is the bundle of already-fetched market data seeding a run,
// keyed by domain.
type Snapshot struct {
	FXRates        map[string]float64 `json:"fx_rates,omitempty"`
	Macro          map[string]float64 `json:"macro_data,omitempty"`
	News           []Headline         `json:"news,omitempty"`
	Calendar       []CalendarEvent    `json:"calendar,omitempty"`
	SentimentScore int                `json:"sentiment_score"`
	AsOf           time.Time          `json:"as_of"`
}

type Headline struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Published time.Time `json:"published,omitempty"`
}

type CalendarEvent struct {
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	Importance string    `json:"importance,omitempty"`
}

// Empty reports whether the snapshot carries no data at all. An empty seed
// aborts the run before the first model call.
func (s Snapshot) Empty() bool {
	return len(s.FXRates) == 0 && len(s.Macro) == 0 && len(s.News) == 0 && len(s.Calendar) == 0
}
