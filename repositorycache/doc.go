// Package repositorycache provides a prefetching repository decorator for go-repository-bun.
//
// # Overview
//
// PrefetchRepository wraps a base repository and answers primary key lookups
// from the prefetch.Store carried by the request context. Keys the store has
// never seen are loaded from the base repository in one batch, collected into
// the store, and every requested key the base did not return is recorded as
// absent so the same unit of work never asks for it again.
//
// # Basic Usage
//
//	registry := prefetch.NewRegistry(prefetch.DefaultConfig(), logger)
//	users := repositorycache.New(baseUsers)
//
//	ctx, _, unit := registry.Begin(ctx)
//	defer registry.End(unit)
//
//	rows, err := users.GetByIDs(ctx, []string{"1", "2", "2", "9"})
//	user, err := users.GetByID(ctx, "9") // ErrNotFound, no query
//
// # Operations
//
// ## Prefetched
//   - GetByIDs: fetch, load the remainder, collect, fetch again in input order
//   - GetByID: present slot returns the row, absent slot returns ErrNotFound
//
// ## Collected when Heuristics is on
//   - Get, List, GetByIdentifier
//
// ## Writes
//   - Create, Update, Upsert and their Many variants overwrite the stored row
//   - Delete and ForceDelete record the key as absent
//   - DeleteMany and DeleteWhere drop the whole namespace
//   - Tx variants forget the touched keys, since the transaction may roll back
//
// ## Pass-through
//   - Count, Raw and the Tx read methods
//
// # Shared Tier
//
// WithSharedTier puts a cache.SharedTier between the store and the base
// repository. The tier outlives units of work and remembers missing records
// too, so a key absent in one request is not queried by the next one until its
// TTL runs out. Writes through the decorator invalidate the tier.
//
// # Flags
//
// prefetch.Config is read by the decorator, never by the store. Heuristics
// enables opportunistic collection, Training enables the hit, miss and load
// counters reported by Stats.
//
// # Bypass
//
// Without a store in the context, or with WithoutPrefetch, every method calls
// the base repository directly.
package repositorycache
