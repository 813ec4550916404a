package app

import (
	"context"

	"finfeed/domain"
)

// Deduplicator decides whether a raw item is already stored. An item is a
// duplicate when the store holds an article with the same link, or one with
// the same title in the same feed.
//
// This is a read-before-write check and is not atomic with the insert that
// follows it; the store's uniqueness constraints are the authoritative guard
// and a lost race surfaces there as domain.ErrDuplicateArticle.
type Deduplicator struct {
	store domain.Store
}

func NewDeduplicator(store domain.Store) *Deduplicator {
	return &Deduplicator{store: store}
}

func (d *Deduplicator) Exists(ctx context.Context, item domain.RawItem, feedID string) (bool, error) {
	existing, err := d.store.FindExistingArticle(ctx, item.Link, item.Title, feedID)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}
