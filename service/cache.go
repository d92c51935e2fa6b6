package service

import (
	"context"
	"time"

	"github.com/harshraj78/legal-check-ai/model"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedReader serves contract reads, answering from an LRU for contracts in a
// terminal state. Terminal contracts never change, so entries are never stale.
type CachedReader struct {
	store *ContractStore
	cache *expirable.LRU[string, *model.Contract]
}

func NewCachedReader(store *ContractStore, size int, ttl time.Duration) *CachedReader {
	if size <= 0 {
		size = 1
	}
	return &CachedReader{
		store: store,
		cache: expirable.NewLRU[string, *model.Contract](size, nil, ttl),
	}
}

// Get returns the contract for id. Callers must not modify the result.
func (r *CachedReader) Get(ctx context.Context, id string) (*model.Contract, error) {
	if c, ok := r.cache.Get(id); ok {
		return c, nil
	}

	c, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		r.cache.Add(id, c)
	}
	return c, nil
}

// Len returns the number of cached contracts.
func (r *CachedReader) Len() int {
	return r.cache.Len()
}
