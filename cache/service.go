package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidResultType is returned by FetchBatchAs when the tier holds a row of
// another type under the requested namespace.
var ErrInvalidResultType = errors.New("cache: invalid result type")

// BatchFetchFn loads rows for ids from the source of truth, keyed by id. Ids
// missing from the result are remembered as missing by the tier.
type BatchFetchFn func(ctx context.Context, ids []string) (map[string]any, error)

// SharedTier is a process-wide cache consulted for the remainder of a
// unit-of-work fetch before the source of truth. It outlives individual
// prefetch stores and expires entries on its own.
type SharedTier interface {
	FetchBatch(ctx context.Context, namespace string, ids []string, fetchFn BatchFetchFn) (map[string]any, error)
	Invalidate(ctx context.Context, namespace string, ids ...string) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

// FetchBatchAs is a type-safe wrapper around SharedTier.FetchBatch.
func FetchBatchAs[T any](ctx context.Context, tier SharedTier, namespace string, ids []string, fetchFn func(ctx context.Context, ids []string) (map[string]T, error)) (map[string]T, error) {
	raw, err := tier.FetchBatch(ctx, namespace, ids, func(ctx context.Context, ids []string) (map[string]any, error) {
		rows, err := fetchFn(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(rows))
		for id, row := range rows {
			out[id] = row
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]T, len(raw))
	for id, value := range raw {
		typed, ok := value.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("%w: namespace %q id %q holds %T, want %T", ErrInvalidResultType, namespace, id, value, zero)
		}
		result[id] = typed
	}
	return result, nil
}
