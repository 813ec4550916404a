package domain

import "errors"

var (
	// ErrDuplicateArticle is returned by Store.CreateArticle when an insert
	// loses to the link or (title, feed_id) uniqueness constraints. Callers
	// treat it as a dedup skip, not a failure.
	ErrDuplicateArticle = errors.New("article already exists")

	// ErrAlreadyRunning is returned when a manual ingestion trigger arrives
	// while an ingestion pass is in flight. The trigger is not queued.
	ErrAlreadyRunning = errors.New("ingestion already running")

	ErrFeedNotFound = errors.New("feed not found")
)
