package cache

import (
	"testing"
	"time"

	"retrieval/internal/domain"
)

type countingSearcher struct {
	calls int
}

func (s *countingSearcher) SearchHits(query string, k int) ([]domain.Hit, error) {
	s.calls++
	return []domain.Hit{{Ordinal: s.calls, Text: query}}, nil
}

func TestCachedRetrieverHitsCache(t *testing.T) {
	searcher := &countingSearcher{}
	r := NewCachedRetriever(searcher, NewQueryCache(10, time.Minute))

	first, _ := r.Search("renew license", 3)
	second, _ := r.Search("renew license", 3)
	if searcher.calls != 1 {
		t.Fatalf("expected 1 underlying search, got %d", searcher.calls)
	}
	if first[0] != second[0] {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}

	r.Search("renew license", 5)
	if searcher.calls != 2 {
		t.Errorf("different k must miss the cache, got %d calls", searcher.calls)
	}
}

func TestQueryCacheInvalidate(t *testing.T) {
	searcher := &countingSearcher{}
	c := NewQueryCache(10, time.Minute)
	r := NewCachedRetriever(searcher, c)

	r.Search("q", 1)
	gen := c.Generation()
	r.Invalidate()
	if c.Size() != 0 {
		t.Errorf("expected empty cache after invalidate, got %d", c.Size())
	}

	hits, _ := r.SearchHits("q", 1)
	if hits[0].Ordinal != 2 {
		t.Errorf("expected a fresh search after invalidate, got ordinal %d", hits[0].Ordinal)
	}

	c.Put("stale", 1, []domain.Hit{{Text: "old"}}, gen)
	if _, ok := c.Get("stale", 1); ok {
		t.Error("results from before the invalidation must not be stored")
	}
}

func TestQueryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	gen := c.Generation()

	c.Put("a", 1, nil, gen)
	c.Put("b", 1, nil, gen)
	c.Get("a", 1)
	c.Put("c", 1, nil, gen)

	if _, ok := c.Get("b", 1); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a", 1); !ok {
		t.Error("expected a to survive")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(2, time.Nanosecond)
	c.Put("a", 1, nil, c.Generation())
	time.Sleep(time.Millisecond)

	if _, ok := c.Get("a", 1); ok {
		t.Error("expected expired entry to miss")
	}
	hits, misses := c.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("unexpected stats hits=%d misses=%d", hits, misses)
	}
}

func TestCachedRetrieverResultsAreCopies(t *testing.T) {
	searcher := &countingSearcher{}
	r := NewCachedRetriever(searcher, NewQueryCache(10, time.Minute))

	first, _ := r.SearchHits("renew license", 3)
	first[0].Text = "changed by caller"

	second, _ := r.SearchHits("renew license", 3)
	second[0].Text = "changed again"

	third, _ := r.SearchHits("renew license", 3)
	if searcher.calls != 1 {
		t.Fatalf("expected 1 underlying search, got %d", searcher.calls)
	}
	if third[0].Text != "renew license" {
		t.Errorf("cached hit was modified through a returned slice: %q", third[0].Text)
	}
}
