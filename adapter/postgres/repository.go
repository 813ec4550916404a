package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"finfeed/domain"
)

// Repository implements domain.Store on PostgreSQL.
//
// The schema is the authoritative dedup guard: articles carry a unique
// constraint on link and on (title, feed_id), so a race between two
// concurrent dedup checks cannot produce duplicate rows. Constraint
// violations surface as domain.ErrDuplicateArticle.
type Repository struct{ db *sql.DB }

func New(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Ensure(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS feeds (
    id UUID PRIMARY KEY,
    created_at TIMESTAMP NOT NULL DEFAULT now(),
    updated_at TIMESTAMP NOT NULL DEFAULT now(),
    name TEXT UNIQUE NOT NULL,
    url TEXT UNIQUE NOT NULL,
    category TEXT NOT NULL DEFAULT 'general',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    last_fetched TIMESTAMP,
    fetch_error TEXT
);
CREATE TABLE IF NOT EXISTS articles (
    id UUID PRIMARY KEY,
    created_at TIMESTAMP NOT NULL DEFAULT now(),
    updated_at TIMESTAMP NOT NULL DEFAULT now(),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL UNIQUE,
    author TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMP NOT NULL,
    feed_id UUID NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    markets TEXT[] NOT NULL DEFAULT '{}',
    instruments TEXT[] NOT NULL DEFAULT '{}',
    is_processed BOOLEAN NOT NULL DEFAULT FALSE,
    sentiment TEXT,
    sentiment_score DOUBLE PRECISION,
    UNIQUE (title, feed_id)
);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles (published_at);
CREATE INDEX IF NOT EXISTS idx_articles_instruments ON articles USING GIN (instruments);
`)
	return err
}

func (r *Repository) AddFeed(ctx context.Context, name, url, category string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (id, name, url, category) VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
		uuid.NewString(), name, url, category)
	return err
}

func (r *Repository) DeleteFeed(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE name = $1`, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) ListFeeds(ctx context.Context, limit int) ([]domain.Feed, error) {
	q := `SELECT ` + feedColumns + ` FROM feeds ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT $1`
		return scanFeeds(r.db.QueryContext(ctx, q, limit))
	}
	return scanFeeds(r.db.QueryContext(ctx, q))
}

func (r *Repository) GetFeedByName(ctx context.Context, name string) (domain.Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE name = $1`, name)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Feed{}, domain.ErrFeedNotFound
	}
	return f, err
}

// UpsertFeed creates the feed if its URL is new, otherwise refreshes the
// category and active flag. The stored row is returned either way.
func (r *Repository) UpsertFeed(ctx context.Context, f domain.Feed) (domain.Feed, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
INSERT INTO feeds (id, name, url, category, active) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (url) DO UPDATE SET category = EXCLUDED.category, active = EXCLUDED.active, updated_at = now()
RETURNING `+feedColumns,
		f.ID, f.Name, f.URL, f.Category, f.Active)
	return scanFeed(row)
}

func (r *Repository) FindActiveFeeds(ctx context.Context) ([]domain.Feed, error) {
	q := `SELECT ` + feedColumns + ` FROM feeds WHERE active ORDER BY created_at ASC`
	return scanFeeds(r.db.QueryContext(ctx, q))
}

func (r *Repository) UpdateFeedStatus(ctx context.Context, feedID string, lastFetched time.Time, fetchErr *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET last_fetched = $2, fetch_error = $3, updated_at = now() WHERE id = $1`,
		feedID, lastFetched, fetchErr)
	return err
}

func (r *Repository) FindExistingArticle(ctx context.Context, link, title, feedID string) (*domain.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE link = $1 OR (title = $2 AND feed_id = $3) LIMIT 1`,
		link, title, feedID)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
INSERT INTO articles (id, title, description, content, link, author, published_at, feed_id, markets, instruments)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+articleColumns,
		a.ID, a.Title, a.Description, a.Content, a.Link, a.Author, a.PublishedAt, a.FeedID,
		pq.Array(a.Markets), pq.Array(a.Instruments))
	stored, err := scanArticle(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.Article{}, fmt.Errorf("%w: %s", domain.ErrDuplicateArticle, a.Link)
		}
		return domain.Article{}, err
	}
	return stored, nil
}

func (r *Repository) ListArticlesByFeed(ctx context.Context, feedID string, limit int) ([]domain.Article, error) {
	q := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id = $1 ORDER BY published_at DESC, created_at DESC`
	if limit > 0 {
		q += ` LIMIT $2`
		return scanArticles(r.db.QueryContext(ctx, q, feedID, limit))
	}
	return scanArticles(r.db.QueryContext(ctx, q, feedID))
}

func (r *Repository) FindArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error) {
	q := `SELECT ` + articleColumns + ` FROM articles WHERE published_at >= $1 ORDER BY published_at DESC`
	return scanArticles(r.db.QueryContext(ctx, q, since))
}

func (r *Repository) FindArticlesByInstrument(ctx context.Context, code string, query domain.ArticleQuery) ([]domain.Article, error) {
	q := `SELECT ` + articleColumns + ` FROM articles WHERE $1 = ANY(instruments)`
	args := []interface{}{code}
	if query.DateFrom != nil {
		args = append(args, *query.DateFrom)
		q += fmt.Sprintf(` AND published_at >= $%d`, len(args))
	}
	if query.DateTo != nil {
		args = append(args, *query.DateTo)
		q += fmt.Sprintf(` AND published_at <= $%d`, len(args))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY published_at DESC LIMIT $%d`, len(args))
	args = append(args, query.Offset)
	q += fmt.Sprintf(` OFFSET $%d`, len(args))
	return scanArticles(r.db.QueryContext(ctx, q, args...))
}

func (r *Repository) DeleteArticlesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const feedColumns = `id, created_at, updated_at, name, url, category, active, last_fetched, fetch_error`

const articleColumns = `id, created_at, updated_at, title, description, content, link, author, published_at, feed_id, markets, instruments, is_processed, sentiment, sentiment_score`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (domain.Feed, error) {
	var f domain.Feed
	err := row.Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt, &f.Name, &f.URL, &f.Category, &f.Active, &f.LastFetched, &f.FetchError)
	return f, err
}

func scanFeeds(rows *sql.Rows, err error) ([]domain.Feed, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var a domain.Article
	err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Title, &a.Description, &a.Content, &a.Link, &a.Author,
		&a.PublishedAt, &a.FeedID, pq.Array(&a.Markets), pq.Array(&a.Instruments), &a.IsProcessed, &a.Sentiment, &a.SentimentScore)
	return a, err
}

func scanArticles(rows *sql.Rows, err error) ([]domain.Article, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
