package main

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	defaultMaxArticles = 10

	// unboundedAge makes every cached entry count as fresh.
	unboundedAge = time.Duration(math.MaxInt64)
)

// CacheStore is the backing store of a RecencyCache. Implementations keep an
// ordered collection per key and must make add+trim atomic per key.
type CacheStore interface {
	// AddAndTrim appends entries under key, then evicts the oldest entries
	// until at most capacity remain.
	AddAndTrim(ctx context.Context, key string, entries []CacheEntry, capacity int) error
	// Range returns every entry under key, oldest first. A missing key is not an error.
	Range(ctx context.Context, key string) ([]CacheEntry, error)
}

// RecencyCache holds the most recent articles per (category, language, country)
type RecencyCache struct {
	store    CacheStore
	capacity int
	clock    func() time.Time
}

// RecencyCacheOption mutates a RecencyCache at construction
type RecencyCacheOption func(*RecencyCache)

// WithCacheClock replaces the wall clock used for insertedAt and age checks
func WithCacheClock(clock func() time.Time) RecencyCacheOption {
	return func(c *RecencyCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewRecencyCache creates a cache over store holding at most capacity entries per key
func NewRecencyCache(store CacheStore, capacity int, opts ...RecencyCacheOption) *RecencyCache {
	if capacity <= 0 {
		capacity = defaultMaxArticles
	}
	c := &RecencyCache{
		store:    store,
		capacity: capacity,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capacity returns the per-key entry cap
func (c *RecencyCache) Capacity() int {
	return c.capacity
}

// Write appends articles under key stamped with the current time and trims
// the partition to capacity. Writing nothing is a no-op.
func (c *RecencyCache) Write(ctx context.Context, key CacheKey, articles []Article) error {
	if len(articles) == 0 {
		return nil
	}

	now := c.clock()
	entries := make([]CacheEntry, 0, len(articles))
	for _, article := range articles {
		entries = append(entries, CacheEntry{Article: article, InsertedAt: now})
	}

	if err := c.store.AddAndTrim(ctx, key.String(), entries, c.capacity); err != nil {
		return newError(KindCacheUnavailable, "cache write "+key.String(), "", err)
	}
	return nil
}

// Read returns every entry under key, oldest first
func (c *RecencyCache) Read(ctx context.Context, key CacheKey) ([]CacheEntry, error) {
	entries, err := c.store.Range(ctx, key.String())
	if err != nil {
		return nil, newError(KindCacheUnavailable, "cache read "+key.String(), "", err)
	}
	return entries, nil
}

// ReadFresh returns the articles under key inserted no more than maxAge ago
func (c *RecencyCache) ReadFresh(ctx context.Context, key CacheKey, maxAge time.Duration) ([]Article, error) {
	entries, err := c.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	now := c.clock()
	articles := make([]Article, 0, len(entries))
	for _, entry := range entries {
		if now.Sub(entry.InsertedAt) <= maxAge {
			articles = append(articles, entry.Article)
		}
	}
	return articles, nil
}

// MemoryStore is an in-process CacheStore with one lock per key
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[string]*memoryPartition
}

type memoryPartition struct {
	mu      sync.Mutex
	entries []CacheEntry
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]*memoryPartition)}
}

func (s *MemoryStore) partition(key string, create bool) *memoryPartition {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[key]
	if !ok && create {
		p = &memoryPartition{}
		s.partitions[key] = p
	}
	return p
}

// AddAndTrim implements CacheStore
func (s *MemoryStore) AddAndTrim(ctx context.Context, key string, entries []CacheEntry, capacity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	p := s.partition(key, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, entries...)
	// concurrent writers may arrive out of clock order
	sort.SliceStable(p.entries, func(i, j int) bool {
		return p.entries[i].InsertedAt.Before(p.entries[j].InsertedAt)
	})
	if excess := len(p.entries) - capacity; excess > 0 {
		p.entries = append(p.entries[:0], p.entries[excess:]...)
	}
	return nil
}

// Range implements CacheStore
func (s *MemoryStore) Range(ctx context.Context, key string) ([]CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.partition(key, false)
	if p == nil {
		return []CacheEntry{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CacheEntry, len(p.entries))
	copy(out, p.entries)
	return out, nil
}
