package rss

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"finfeed/domain"
)

const defaultTimeout = 30 * time.Second

// Fetcher retrieves and parses remote feeds (RSS, Atom or JSON Feed).
// The HTTP client carries a hard timeout so a hung upstream surfaces as a
// fetch error instead of stalling the pipeline.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
	log    zerolog.Logger
}

func NewFetcher(timeout time.Duration, log zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		log:    log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch downloads and parses one feed. Items are returned in the order the
// feed lists them. Titles and descriptions are stripped of HTML markup, and
// items without a parsable published date fall back to the fetch time.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := time.Now()
	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		item := domain.RawItem{
			Title:       stripHTML(it.Title),
			Link:        strings.TrimSpace(it.Link),
			Description: stripHTML(it.Description),
			Content:     stripHTML(it.Content),
			PublishedAt: now,
		}
		if it.PublishedParsed != nil {
			item.PublishedAt = *it.PublishedParsed
		}
		if it.Author != nil {
			item.Author = strings.TrimSpace(it.Author.Name)
		}
		items = append(items, item)
	}

	f.log.Debug().Str("url", feedURL).Int("items", len(items)).Msg("Feed fetched")
	return items, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}
