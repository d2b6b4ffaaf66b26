package collector

import (
	"context"
	"net/url"
	"sort"
)

const trendsExploreURL = "https://trends.google.com/trends/explore"

// Trends scores keywords from a static base table with per-country multipliers.
// It performs no I/O and cannot fail.
type Trends struct {
	settings TrendSettings
}

func NewTrends(settings TrendSettings) *Trends {
	return &Trends{settings: settings}
}

func (t *Trends) Name() string { return "trends" }

func (t *Trends) Platform() Platform { return PlatformGoogleTrends }

func (t *Trends) Multiplier(country string) float64 {
	if m, ok := t.settings.Multipliers[NormalizeCountry(country)]; ok {
		return m
	}
	return DefaultTrendMultiplier
}

func (t *Trends) Collect(_ context.Context, country string) ([]Item, error) {
	country = NormalizeCountry(country)
	multiplier := t.Multiplier(country)

	keywords := make([]string, 0, len(t.settings.Keywords))
	for keyword := range t.settings.Keywords {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	items := make([]Item, 0, len(keywords))
	for _, keyword := range keywords {
		base := t.settings.Keywords[keyword]
		score := round2(base * multiplier)

		items = append(items, Item{
			Name:      keyword,
			Platform:  PlatformGoogleTrends,
			Country:   country,
			SourceURL: trendURL(keyword, country),
			Metrics:   map[string]float64{"trend_score": score},
			Score:     score,
		})
	}

	return items, nil
}

func trendURL(keyword, country string) string {
	params := url.Values{"q": {keyword}, "geo": {country}}
	return trendsExploreURL + "?" + params.Encode()
}
