package cache

import (
	"container/list"
	"slices"
	"strconv"
	"sync"
	"time"

	"retrieval/internal/domain"
)

// QueryCache is an LRU of search results with a TTL. Invalidate drops
// everything, including entries written by searches still in flight.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	gen     uint64

	hits, misses uint64
}

type cacheEntry struct {
	key     string
	hits    []domain.Hit
	created time.Time
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(query string, k int) string {
	return strconv.Itoa(k) + "\x00" + query
}

func (c *QueryCache) Get(query string, k int) ([]domain.Hit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[cacheKey(query, k)]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Since(entry.created) > c.ttl {
		c.remove(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return slices.Clone(entry.hits), true
}

// Generation identifies the current index; pass it back to Put.
func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Put stores hits unless the cache was invalidated since gen was read.
func (c *QueryCache) Put(query string, k int, hits []domain.Hit, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	key := cacheKey(query, k)
	if el, ok := c.entries[key]; ok {
		el.Value = &cacheEntry{key: key, hits: slices.Clone(hits), created: time.Now()}
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.maxSize {
		c.remove(c.lru.Back())
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, hits: slices.Clone(hits), created: time.Now()})
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.lru.Init()
	c.gen++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// HitSearcher is the part of the vector index the cache wraps.
type HitSearcher interface {
	SearchHits(query string, k int) ([]domain.Hit, error)
}

type CachedRetriever struct {
	searcher HitSearcher
	cache    *QueryCache
}

func NewCachedRetriever(searcher HitSearcher, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{searcher: searcher, cache: cache}
}

func (r *CachedRetriever) SearchHits(query string, k int) ([]domain.Hit, error) {
	if hits, ok := r.cache.Get(query, k); ok {
		return hits, nil
	}

	gen := r.cache.Generation()
	hits, err := r.searcher.SearchHits(query, k)
	if err != nil {
		return nil, err
	}
	r.cache.Put(query, k, hits, gen)
	return hits, nil
}

func (r *CachedRetriever) Search(query string, k int) ([]string, error) {
	hits, err := r.SearchHits(query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

func (r *CachedRetriever) Invalidate() {
	r.cache.Invalidate()
}
