package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"finfeed/domain"
	"finfeed/internal/classify"
	"finfeed/internal/taxonomy"
)

const (
	// Feeds are fetched in concurrent groups of this size, with a pause
	// between groups, so a long feed list does not hammer upstreams all at
	// once.
	defaultGroupSize  = 3
	defaultGroupDelay = time.Second
)

// FeedResult summarizes one feed's processing pass.
type FeedResult struct {
	FeedID    string
	Processed int
	Skipped   int
	Err       error
}

// IngestionPipeline runs fetch -> dedup -> classify -> persist for a feed,
// and orchestrates that across all active feeds in throttled batches.
//
// Failures are contained at the smallest scope: a failing item is counted
// and skipped without aborting its feed, and a failing feed is recorded on
// the feed row without aborting its siblings.
type IngestionPipeline struct {
	store  domain.Store
	source domain.FeedSource
	dedup  *Deduplicator
	tax    *taxonomy.Taxonomy
	log    zerolog.Logger

	groupSize  int
	groupDelay time.Duration
}

type PipelineOption func(*IngestionPipeline)

func WithGroupSize(n int) PipelineOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.groupSize = n
		}
	}
}

func WithGroupDelay(d time.Duration) PipelineOption {
	return func(p *IngestionPipeline) {
		if d >= 0 {
			p.groupDelay = d
		}
	}
}

func NewIngestionPipeline(store domain.Store, source domain.FeedSource, tax *taxonomy.Taxonomy, log zerolog.Logger, opts ...PipelineOption) *IngestionPipeline {
	p := &IngestionPipeline{
		store:      store,
		source:     source,
		dedup:      NewDeduplicator(store),
		tax:        tax,
		log:        log.With().Str("component", "pipeline").Logger(),
		groupSize:  defaultGroupSize,
		groupDelay: defaultGroupDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessFeed resolves (or lazily creates) the feed record for a URL and
// runs one processing pass over it.
func (p *IngestionPipeline) ProcessFeed(ctx context.Context, feedURL, category string) FeedResult {
	if category == "" {
		category = classify.GeneralCategory
	}
	feed, err := p.store.UpsertFeed(ctx, domain.Feed{
		Name:     feedNameFromURL(feedURL),
		URL:      feedURL,
		Category: category,
		Active:   true,
	})
	if err != nil {
		return FeedResult{Err: fmt.Errorf("resolve feed %s: %w", feedURL, err)}
	}
	return p.processFeed(ctx, feed)
}

// ProcessAllFeeds runs one pass over every active feed. Feeds are processed
// in groups of groupSize; feeds within a group run concurrently and
// independently, and groups are separated by groupDelay. The pass always
// completes: per-feed failures only increment the error count.
func (p *IngestionPipeline) ProcessAllFeeds(ctx context.Context) (domain.BatchResult, error) {
	feeds, err := p.store.FindActiveFeeds(ctx)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("list active feeds: %w", err)
	}

	var batch domain.BatchResult
	for start := 0; start < len(feeds); start += p.groupSize {
		end := start + p.groupSize
		if end > len(feeds) {
			end = len(feeds)
		}
		group := feeds[start:end]

		results := make([]FeedResult, len(group))
		var wg sync.WaitGroup
		for i := range group {
			wg.Add(1)
			go func(i int, f domain.Feed) {
				defer wg.Done()
				results[i] = p.processFeed(ctx, f)
			}(i, group[i])
		}
		wg.Wait()

		for _, r := range results {
			batch.Processed += r.Processed
			if r.Err != nil {
				batch.Errors++
			}
		}

		if end < len(feeds) {
			select {
			case <-time.After(p.groupDelay):
			case <-ctx.Done():
				return batch, ctx.Err()
			}
		}
	}

	p.log.Info().
		Int("feeds", len(feeds)).
		Int("processed", batch.Processed).
		Int("errors", batch.Errors).
		Msg("Ingestion pass complete")
	return batch, nil
}

func (p *IngestionPipeline) processFeed(ctx context.Context, feed domain.Feed) FeedResult {
	items, err := p.source.Fetch(ctx, feed.URL)
	now := time.Now()
	if err != nil {
		msg := err.Error()
		if uerr := p.store.UpdateFeedStatus(ctx, feed.ID, now, &msg); uerr != nil {
			p.log.Error().Err(uerr).Str("feed", feed.Name).Msg("Failed to record fetch error")
		}
		p.log.Warn().Err(err).Str("feed", feed.Name).Msg("Feed fetch failed")
		return FeedResult{FeedID: feed.ID, Err: err}
	}

	res := FeedResult{FeedID: feed.ID}
	for _, item := range items {
		stored, err := p.ingestItem(ctx, feed, item)
		if err != nil {
			res.Skipped++
			p.log.Error().Err(err).Str("feed", feed.Name).Str("link", item.Link).Msg("Failed to store article")
			continue
		}
		if stored {
			res.Processed++
		} else {
			res.Skipped++
		}
	}

	// A feed that fetched fine but whose items all failed downstream still
	// counts as fetched.
	if err := p.store.UpdateFeedStatus(ctx, feed.ID, time.Now(), nil); err != nil {
		p.log.Error().Err(err).Str("feed", feed.Name).Msg("Failed to update feed status")
	}

	p.log.Debug().
		Str("feed", feed.Name).
		Int("processed", res.Processed).
		Int("skipped", res.Skipped).
		Msg("Feed processed")
	return res
}

// ingestItem stores one raw item unless it is invalid or a duplicate.
// It returns (true, nil) when an article was created, (false, nil) on a
// skip, and (false, err) on a persistence failure.
func (p *IngestionPipeline) ingestItem(ctx context.Context, feed domain.Feed, item domain.RawItem) (bool, error) {
	if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
		p.log.Debug().Str("feed", feed.Name).Msg("Skipping item without title or link")
		return false, nil
	}

	dup, err := p.dedup.Exists(ctx, item, feed.ID)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		p.log.Debug().Str("link", item.Link).Msg("Skipping duplicate item")
		return false, nil
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	c := classify.CategorizeByAsset(p.tax, item.Title, content)

	markets := []string{feed.Category}
	if c.Primary != feed.Category && c.Primary != classify.GeneralCategory {
		markets = append(markets, c.Primary)
	}

	published := item.PublishedAt
	if published.IsZero() {
		published = time.Now()
	}

	_, err = p.store.CreateArticle(ctx, domain.Article{
		Title:       item.Title,
		Description: item.Description,
		Content:     content,
		Link:        item.Link,
		Author:      item.Author,
		PublishedAt: published,
		FeedID:      feed.ID,
		Markets:     markets,
		Instruments: p.allInstruments(c.All),
	})
	if errors.Is(err, domain.ErrDuplicateArticle) {
		// Lost the insert race against a concurrent check; same outcome as
		// the dedup skip above.
		p.log.Debug().Str("link", item.Link).Msg("Duplicate insert rejected by store")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// allInstruments flattens a classification into one deduplicated instrument
// list, iterating categories in taxonomy order so the result is stable.
func (p *IngestionPipeline) allInstruments(all map[string][]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, category := range p.tax.Categories() {
		for _, code := range all[category] {
			if !seen[code] {
				seen[code] = true
				out = append(out, code)
			}
		}
	}
	return out
}

func feedNameFromURL(feedURL string) string {
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		return u.Host
	}
	return feedURL
}
