package domain

import (
	"context"
	"time"
)

// Store is the persistence port for feeds and articles. Implementations must
// enforce uniqueness of article links and of (title, feed_id) pairs, and
// surface violations as ErrDuplicateArticle.
type Store interface {
	Ensure(ctx context.Context) error

	AddFeed(ctx context.Context, name, url, category string) error
	DeleteFeed(ctx context.Context, name string) (int64, error)
	ListFeeds(ctx context.Context, limit int) ([]Feed, error)
	GetFeedByName(ctx context.Context, name string) (Feed, error)
	UpsertFeed(ctx context.Context, f Feed) (Feed, error)
	FindActiveFeeds(ctx context.Context) ([]Feed, error)
	UpdateFeedStatus(ctx context.Context, feedID string, lastFetched time.Time, fetchErr *string) error

	FindExistingArticle(ctx context.Context, link, title, feedID string) (*Article, error)
	CreateArticle(ctx context.Context, a Article) (Article, error)
	ListArticlesByFeed(ctx context.Context, feedID string, limit int) ([]Article, error)
	FindArticlesSince(ctx context.Context, since time.Time) ([]Article, error)
	FindArticlesByInstrument(ctx context.Context, code string, q ArticleQuery) ([]Article, error)
	DeleteArticlesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// FeedSource fetches and parses a remote feed. Implementations bound the
// fetch with a timeout; a hung upstream surfaces as a fetch error.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) ([]RawItem, error)
}

// Ingestor runs one full fetch/classify/store pass across all active feeds.
type Ingestor interface {
	ProcessAllFeeds(ctx context.Context) (BatchResult, error)
}

// Controller exposes application-level controls for background processing.
type Controller interface {
	TriggerManualProcessing(ctx context.Context) (BatchResult, error)
	Status() SchedulerStatus
	Statistics(ctx context.Context, timeframe string) (Statistics, error)
}
