package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finfeed/domain"
	"finfeed/internal/taxonomy"
)

// fakeStore is an in-memory domain.Store enforcing the same uniqueness
// rules as the Postgres schema.
type fakeStore struct {
	mu       sync.Mutex
	feeds    map[string]domain.Feed // keyed by ID
	articles []domain.Article

	// failCreateLinks simulates transient persistence failures per link.
	failCreateLinks map[string]bool
	// blindDedup makes FindExistingArticle always miss, simulating a lost
	// race between the read-check and the insert.
	blindDedup bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		feeds:           make(map[string]domain.Feed),
		failCreateLinks: make(map[string]bool),
	}
}

func (s *fakeStore) addFeed(name, url, category string) domain.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := domain.Feed{ID: uuid.NewString(), Name: name, URL: url, Category: category, Active: true}
	s.feeds[f.ID] = f
	return f
}

func (s *fakeStore) feed(id string) domain.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds[id]
}

func (s *fakeStore) articleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.articles)
}

func (s *fakeStore) Ensure(ctx context.Context) error { return nil }

func (s *fakeStore) AddFeed(ctx context.Context, name, url, category string) error {
	s.addFeed(name, url, category)
	return nil
}

func (s *fakeStore) DeleteFeed(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.feeds {
		if f.Name == name {
			delete(s.feeds, id)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) ListFeeds(ctx context.Context, limit int) ([]domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Feed
	for _, f := range s.feeds {
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeStore) GetFeedByName(ctx context.Context, name string) (domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.feeds {
		if f.Name == name {
			return f, nil
		}
	}
	return domain.Feed{}, domain.ErrFeedNotFound
}

func (s *fakeStore) UpsertFeed(ctx context.Context, f domain.Feed) (domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.feeds {
		if existing.URL == f.URL {
			existing.Category = f.Category
			existing.Active = f.Active
			s.feeds[id] = existing
			return existing, nil
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.feeds[f.ID] = f
	return f, nil
}

func (s *fakeStore) FindActiveFeeds(ctx context.Context) ([]domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Feed
	for _, f := range s.feeds {
		if f.Active {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateFeedStatus(ctx context.Context, feedID string, lastFetched time.Time, fetchErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feeds[feedID]
	if !ok {
		return domain.ErrFeedNotFound
	}
	f.LastFetched = &lastFetched
	f.FetchError = fetchErr
	s.feeds[feedID] = f
	return nil
}

func (s *fakeStore) FindExistingArticle(ctx context.Context, link, title, feedID string) (*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blindDedup {
		return nil, nil
	}
	for i := range s.articles {
		a := s.articles[i]
		if a.Link == link || (a.Title == title && a.FeedID == feedID) {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateLinks[a.Link] {
		return domain.Article{}, fmt.Errorf("store unavailable")
	}
	for _, existing := range s.articles {
		if existing.Link == a.Link || (existing.Title == a.Title && existing.FeedID == a.FeedID) {
			return domain.Article{}, domain.ErrDuplicateArticle
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	s.articles = append(s.articles, a)
	return a, nil
}

func (s *fakeStore) ListArticlesByFeed(ctx context.Context, feedID string, limit int) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Article
	for _, a := range s.articles {
		if a.FeedID == feedID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) FindArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Article
	for _, a := range s.articles {
		if !a.PublishedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) FindArticlesByInstrument(ctx context.Context, code string, q domain.ArticleQuery) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Article
	for _, a := range s.articles {
		for _, c := range a.Instruments {
			if c == code {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteArticlesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.Article
	var deleted int64
	for _, a := range s.articles {
		if a.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	s.articles = kept
	return deleted, nil
}

// fakeSource serves canned items or errors per feed URL and tracks
// concurrency across Fetch calls.
type fakeSource struct {
	mu    sync.Mutex
	items map[string][]domain.RawItem
	errs  map[string]error

	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		items: make(map[string][]domain.RawItem),
		errs:  make(map[string]error),
	}
}

func (f *fakeSource) Fetch(ctx context.Context, feedURL string) ([]domain.RawItem, error) {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	return f.items[feedURL], nil
}

func pipelineTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New(taxonomy.Table{
		"forex": {
			"EURUSD": {"eurusd"},
			"GBPUSD": {"gbpusd"},
		},
		"crypto": {
			"BTC": {"bitcoin", "btc"},
			"ETH": {"ethereum"},
		},
	})
	require.NoError(t, err)
	return tax
}

func newTestPipeline(store *fakeStore, source *fakeSource, t *testing.T, opts ...PipelineOption) *IngestionPipeline {
	t.Helper()
	opts = append([]PipelineOption{WithGroupDelay(0)}, opts...)
	return NewIngestionPipeline(store, source, pipelineTaxonomy(t), zerolog.Nop(), opts...)
}

func TestProcessFeedStoresClassifiedArticle(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.items["https://news.example/rss"] = []domain.RawItem{
		{
			Title:       "Bitcoin and ethereum rally",
			Link:        "https://news.example/1",
			Description: "Crypto markets firm as btc climbs",
			PublishedAt: time.Now().Add(-time.Hour),
		},
	}

	p := newTestPipeline(store, source, t)
	res := p.ProcessFeed(context.Background(), "https://news.example/rss", "forex")

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Processed)
	require.Equal(t, 1, store.articleCount())

	a := store.articles[0]
	assert.Equal(t, []string{"forex", "crypto"}, a.Markets)
	assert.Equal(t, []string{"BTC", "ETH"}, a.Instruments)
	assert.NotEmpty(t, a.FeedID)

	f := store.feed(a.FeedID)
	assert.Equal(t, "forex", f.Category)
	require.NotNil(t, f.LastFetched)
	assert.Nil(t, f.FetchError)
}

func TestProcessFeedNoMatchesGetsFeedCategoryOnly(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.items["https://news.example/rss"] = []domain.RawItem{
		{Title: "Weather update", Link: "https://news.example/1"},
	}

	p := newTestPipeline(store, source, t)
	res := p.ProcessFeed(context.Background(), "https://news.example/rss", "stocks")

	require.NoError(t, res.Err)
	require.Equal(t, 1, store.articleCount())
	assert.Equal(t, []string{"stocks"}, store.articles[0].Markets)
	assert.Empty(t, store.articles[0].Instruments)
	// Items without a published date get the fetch time.
	assert.False(t, store.articles[0].PublishedAt.IsZero())
}

func TestProcessFeedSkipsItemsWithoutTitleOrLink(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.items["https://news.example/rss"] = []domain.RawItem{
		{Title: "", Link: "https://news.example/1"},
		{Title: "No link here", Link: "  "},
		{Title: "Valid", Link: "https://news.example/2"},
	}

	p := newTestPipeline(store, source, t)
	res := p.ProcessFeed(context.Background(), "https://news.example/rss", "forex")

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, store.articleCount())
}

func TestReprocessingIsIdempotent(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.items["https://news.example/rss"] = []domain.RawItem{
		{Title: "eurusd outlook", Link: "https://news.example/1"},
		{Title: "gbpusd outlook", Link: "https://news.example/2"},
	}

	p := newTestPipeline(store, source, t)

	first := p.ProcessFeed(context.Background(), "https://news.example/rss", "forex")
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.Processed)

	second := p.ProcessFeed(context.Background(), "https://news.example/rss", "forex")
	require.NoError(t, second.Err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, store.articleCount())
}

func TestSameTitleInDifferentFeedsIsNotADuplicate(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.items["https://a.example/rss"] = []domain.RawItem{
		{Title: "Market wrap", Link: "https://a.example/1"},
	}
	source.items["https://b.example/rss"] = []domain.RawItem{
		{Title: "Market wrap", Link: "https://b.example/1"},
	}

	p := newTestPipeline(store, source, t)
	require.NoError(t, p.ProcessFeed(context.Background(), "https://a.example/rss", "forex").Err)
	require.NoError(t, p.ProcessFeed(context.Background(), "https://b.example/rss", "crypto").Err)

	assert.Equal(t, 2, store.articleCount())
}

func TestPersistenceFailureDoesNotAbortFeed(t *testing.T) {
	store := newFakeStore()
	store.failCreateLinks["https://news.example/2"] = true
	source := newFakeSource()
	source.items["https://news.example/rss"] = []domain.RawItem{
		{Title: "one", Link: "https://news.example/1"},
		{Title: "two", Link: "https://news.example/2"},
		{Title: "three", Link: "https://news.example/3"},
	}

	p := newTestPipeline(store, source, t)
	res := p.ProcessFeed(context.Background(), "https://news.example/rss", "forex")

	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Skipped)

	// The feed still counts as fetched.
	f := store.feed(res.FeedID)
	require.NotNil(t, f.LastFetched)
	assert.Nil(t, f.FetchError)
}

func TestLostInsertRaceCountsAsSkip(t *testing.T) {
	store := newFakeStore()
	store.blindDedup = true
	source := newFakeSource()
	source.items["https://news.example/rss"] = []domain.RawItem{
		{Title: "same story", Link: "https://news.example/1"},
		{Title: "same story", Link: "https://news.example/1"},
	}

	p := newTestPipeline(store, source, t)
	res := p.ProcessFeed(context.Background(), "https://news.example/rss", "forex")

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, store.articleCount())
}

func TestBatchIsolatesFetchFailures(t *testing.T) {
	store := newFakeStore()
	feedA := store.addFeed("a", "https://a.example/rss", "forex")
	feedB := store.addFeed("b", "https://b.example/rss", "crypto")

	source := newFakeSource()
	source.items[feedA.URL] = []domain.RawItem{
		{Title: "eurusd outlook", Link: "https://a.example/1"},
	}
	source.errs[feedB.URL] = errors.New("connection refused")

	p := newTestPipeline(store, source, t)
	batch, err := p.ProcessAllFeeds(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Errors)
	assert.Equal(t, 1, store.articleCount())

	a := store.feed(feedA.ID)
	assert.Nil(t, a.FetchError)
	require.NotNil(t, a.LastFetched)

	b := store.feed(feedB.ID)
	require.NotNil(t, b.FetchError)
	assert.Contains(t, *b.FetchError, "connection refused")
	require.NotNil(t, b.LastFetched)
}

func TestBatchThrottlesGroupConcurrency(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 8; i++ {
		store.addFeed(fmt.Sprintf("feed-%d", i), fmt.Sprintf("https://f%d.example/rss", i), "forex")
	}

	source := newFakeSource()
	source.delay = 20 * time.Millisecond

	p := newTestPipeline(store, source, t, WithGroupSize(3))
	_, err := p.ProcessAllFeeds(context.Background())

	require.NoError(t, err)
	assert.LessOrEqual(t, source.peak.Load(), int32(3))
}

func TestBatchStopsBetweenGroupsOnCancel(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 6; i++ {
		store.addFeed(fmt.Sprintf("feed-%d", i), fmt.Sprintf("https://f%d.example/rss", i), "forex")
	}

	source := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(store, source, t, WithGroupSize(3), WithGroupDelay(time.Minute))
	_, err := p.ProcessAllFeeds(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
