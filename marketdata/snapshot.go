package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Snapshot domains served by the feed.
const (
	DomainFXRates = "fx_rates"
	DomainMacro   = "macro"
	DomainNews    = "news"
)

// Supplemental evidence domains, requested on demand during analysis.
const (
	DomainHistoricalFX = "historical_fx"
	DomainUSYields     = "us_yields"
	DomainOilPrices    = "oil_prices"
	DomainVIX          = "vix"
	DomainBOJPolicy    = "boj_policy"
)

// LoadSnapshot assembles a seed snapshot from the feed. Individual domain
// failures are logged and skipped; an entirely empty result is the caller's
// problem to detect via Snapshot.Empty.
func LoadSnapshot(ctx context.Context, feed *Feed, asOf time.Time) Snapshot {
	snap := Snapshot{
		AsOf:           asOf.UTC(),
		SentimentScore: 50,
	}

	if data, err := feed.Fetch(ctx, DomainFXRates, nil); err != nil {
		log.Warn().Err(err).Msg("fx rates unavailable for snapshot")
	} else {
		snap.FXRates = toFloatMap(data)
	}

	if data, err := feed.Fetch(ctx, DomainMacro, nil); err != nil {
		log.Warn().Err(err).Msg("macro data unavailable for snapshot")
	} else {
		snap.Macro = toFloatMap(data)
		if v, ok := data["sentiment_score"].(float64); ok {
			snap.SentimentScore = int(v)
		}
	}

	if data, err := feed.Fetch(ctx, DomainNews, nil); err != nil {
		log.Warn().Err(err).Msg("news unavailable for snapshot")
	} else {
		snap.News = toHeadlines(data)
	}

	return snap
}

func toFloatMap(data map[string]any) map[string]float64 {
	out := make(map[string]float64, len(data))
	for k, v := range data {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}

func toHeadlines(data map[string]any) []Headline {
	items, ok := data["items"].([]any)
	if !ok {
		return nil
	}
	headlines := make([]Headline, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		h := Headline{}
		if title, ok := entry["title"].(string); ok {
			h.Title = title
		}
		if source, ok := entry["source"].(string); ok {
			h.Source = source
		}
		if h.Title != "" {
			headlines = append(headlines, h)
		}
	}
	return headlines
}
