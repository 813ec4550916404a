package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"finfeed/domain"
)

// topAssetsLimit caps the TopAssets list; categories are never truncated.
const topAssetsLimit = 20

var timeframes = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// StatisticsAggregator computes mention and sentiment rollups over a time
// window of stored articles. It only reads, so it may run concurrently with
// ingestion and tolerates eventual consistency with in-flight passes.
type StatisticsAggregator struct {
	store domain.Store
	log   zerolog.Logger
}

func NewStatisticsAggregator(store domain.Store, log zerolog.Logger) *StatisticsAggregator {
	return &StatisticsAggregator{
		store: store,
		log:   log.With().Str("component", "statistics").Logger(),
	}
}

// GetStatistics rolls up articles published within the timeframe ("24h",
// "7d" or "30d"). An article counts one mention per instrument in its tagged
// set and one per market, regardless of text occurrences. Sorting is by
// mention count descending; ties keep first-appearance order, so callers
// must not assume a secondary sort key.
func (s *StatisticsAggregator) GetStatistics(ctx context.Context, timeframe string) (domain.Statistics, error) {
	window, ok := timeframes[timeframe]
	if !ok {
		return domain.Statistics{}, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	articles, err := s.store.FindArticlesSince(ctx, time.Now().Add(-window))
	if err != nil {
		return domain.Statistics{}, fmt.Errorf("load articles: %w", err)
	}

	assetCounts := make(map[string]int)
	assetSentiment := make(map[string]*domain.SentimentTally)
	var assetOrder []string

	categoryCounts := make(map[string]int)
	var categoryOrder []string

	for _, a := range articles {
		for _, code := range a.Instruments {
			if _, known := assetCounts[code]; !known {
				assetOrder = append(assetOrder, code)
				assetSentiment[code] = &domain.SentimentTally{}
			}
			assetCounts[code]++
			if a.Sentiment != nil {
				tally := assetSentiment[code]
				switch *a.Sentiment {
				case domain.SentimentPositive:
					tally.Positive++
				case domain.SentimentNegative:
					tally.Negative++
				case domain.SentimentNeutral:
					tally.Neutral++
				}
			}
		}
		for _, market := range a.Markets {
			if _, known := categoryCounts[market]; !known {
				categoryOrder = append(categoryOrder, market)
			}
			categoryCounts[market]++
		}
	}

	topAssets := make([]domain.AssetMention, 0, len(assetOrder))
	for _, code := range assetOrder {
		topAssets = append(topAssets, domain.AssetMention{
			Instrument: code,
			Mentions:   assetCounts[code],
			Sentiment:  *assetSentiment[code],
		})
	}
	sort.SliceStable(topAssets, func(i, j int) bool {
		return topAssets[i].Mentions > topAssets[j].Mentions
	})
	if len(topAssets) > topAssetsLimit {
		topAssets = topAssets[:topAssetsLimit]
	}

	topCategories := make([]domain.CategoryMention, 0, len(categoryOrder))
	for _, category := range categoryOrder {
		topCategories = append(topCategories, domain.CategoryMention{
			Category: category,
			Mentions: categoryCounts[category],
		})
	}
	sort.SliceStable(topCategories, func(i, j int) bool {
		return topCategories[i].Mentions > topCategories[j].Mentions
	})

	s.log.Debug().
		Str("timeframe", timeframe).
		Int("articles", len(articles)).
		Int("assets", len(assetCounts)).
		Msg("Statistics computed")

	return domain.Statistics{
		Timeframe:     timeframe,
		TotalArticles: len(articles),
		TopAssets:     topAssets,
		TopCategories: topCategories,
		LastUpdated:   time.Now(),
	}, nil
}
