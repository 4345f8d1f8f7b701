// Package cache provides the optional shared tier that sits behind per-request
// prefetch stores.
//
// # Overview
//
// A prefetch.Store lives for one unit of work. When its Fetch leaves a
// remainder, callers can consult a SharedTier before going to the source of
// truth. The tier is process-wide, expires entries by TTL and, with
// MissingRecordStorage enabled, remembers ids the source did not return so
// confirmed absence survives across requests.
//
// The default implementation is backed by sturdyc batch lookups:
//
//	tier, err := cache.NewSharedTier(cache.DefaultConfig())
//	rows, err := cache.FetchBatchAs(ctx, tier, "users", ids, func(ctx context.Context, ids []string) (map[string]User, error) {
//		return loadUsers(ctx, ids)
//	})
//
// Only ids that are neither cached nor marked missing reach the fetch function.
//
// # Invalidation
//
// Invalidate drops individual ids and InvalidateNamespace drops a whole
// namespace. Repository decorators call these after writes.
package cache
