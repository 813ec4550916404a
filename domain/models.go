package domain

import "time"

// Feed is a configured upstream source. LastFetched and FetchError are
// updated after every fetch attempt: a successful fetch clears the error,
// a failed one records it.
type Feed struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string
	URL         string
	Category    string
	Active      bool
	LastFetched *time.Time
	FetchError  *string
}

// RawItem is a single entry yielded by a feed fetch. It is never persisted
// as-is; the pipeline normalizes survivors into Articles.
type RawItem struct {
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	PublishedAt time.Time
}

// Article is a normalized, persisted unit of ingested content. Link is
// globally unique and (Title, FeedID) is unique per feed; both are enforced
// by the store. Content fields are immutable after creation, only the
// processing/sentiment fields are updated later by downstream systems.
type Article struct {
	ID             string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Title          string
	Description    string
	Content        string
	Link           string
	Author         string
	PublishedAt    time.Time
	FeedID         string
	Markets        []string
	Instruments    []string
	IsProcessed    bool
	Sentiment      *string
	SentimentScore *float64
}

// Sentiment labels assigned by the (external) sentiment subsystem.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// FeedSpec is one entry of the configured feed list.
type FeedSpec struct {
	Category string
	Name     string
	URL      string
}

// ArticleQuery narrows article lookups. Limit defaults to 20 when zero,
// Offset defaults to 0, and the date bounds are inclusive and optional.
type ArticleQuery struct {
	Limit    int
	Offset   int
	DateFrom *time.Time
	DateTo   *time.Time
}

type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobError   JobState = "error"
)

// JobStatus is the in-memory execution record of one scheduled job. It is
// rebuilt from scratch on process restart.
type JobStatus struct {
	Name         string        `json:"name"`
	State        JobState      `json:"state"`
	LastRun      time.Time     `json:"lastRun"`
	NextRun      time.Time     `json:"nextRun"`
	LastDuration time.Duration `json:"lastDuration"`
	LastError    string        `json:"lastError,omitempty"`
}

// BatchResult summarizes one full ingestion pass across all active feeds.
type BatchResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// SchedulerStatus is a point-in-time snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning     bool        `json:"isRunning"`
	IngestRunning bool        `json:"ingestRunning"`
	ActiveJobs    int         `json:"activeJobs"`
	Jobs          []JobStatus `json:"jobs"`
}

// SentimentTally counts sentiment labels across the articles mentioning one
// instrument.
type SentimentTally struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// AssetMention is one instrument's rollup: an article counts once no matter
// how often the instrument appears in its text.
type AssetMention struct {
	Instrument string         `json:"instrument"`
	Mentions   int            `json:"mentions"`
	Sentiment  SentimentTally `json:"sentiment"`
}

type CategoryMention struct {
	Category string `json:"category"`
	Mentions int    `json:"mentions"`
}

// Statistics is the windowed mention/sentiment rollup.
type Statistics struct {
	Timeframe     string            `json:"timeframe"`
	TotalArticles int               `json:"totalArticles"`
	TopAssets     []AssetMention    `json:"topAssets"`
	TopCategories []CategoryMention `json:"topCategories"`
	LastUpdated   time.Time         `json:"lastUpdated"`
}
