package repositorycache

import (
	"sync/atomic"

	"github.com/goliatone/go-repository-prefetch/prefetch"
)

// Stats counts how a repository used the prefetch store. Counters only move
// while the store's Training flag is on.
type Stats struct {
	// Hits are ids answered by the store, including confirmed misses.
	Hits uint64
	// Misses are ids the store could not answer.
	Misses uint64
	// Loads are round trips to the source of truth.
	Loads uint64
}

type stats struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	loads  atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Loads:  s.loads.Load(),
	}
}

func (c *PrefetchRepository[T]) observe(store *prefetch.Store, hits, misses int) {
	if !store.Config().Training() {
		return
	}
	c.stats.hits.Add(uint64(hits))
	c.stats.misses.Add(uint64(misses))
}

func (c *PrefetchRepository[T]) countLoad(store *prefetch.Store) {
	if store.Config().Training() {
		c.stats.loads.Add(1)
	}
}
