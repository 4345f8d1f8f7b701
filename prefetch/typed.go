package prefetch

import (
	"errors"
	"fmt"
)

// ErrItemType is returned by FetchAs when a stored item is not of the
// requested type, which means two callers share a namespace for different
// entities.
var ErrItemType = errors.New("prefetch: stored item has unexpected type")

// FetchAs is the type-safe form of Store.Fetch.
func FetchAs[K, T any](s *Store, namespace string, keys []K) ([]K, []T, error) {
	generic := make([]any, len(keys))
	for i, k := range keys {
		generic[i] = k
	}

	rest, found := s.Fetch(namespace, generic)

	remainder := make([]K, 0, len(rest))
	for _, k := range rest {
		key, _ := k.(K)
		remainder = append(remainder, key)
	}

	items := make([]T, 0, len(found))
	for _, item := range found {
		typed, ok := item.(T)
		if !ok {
			var zero T
			return nil, nil, fmt.Errorf("%w: namespace %q holds %T, want %T", ErrItemType, namespace, item, zero)
		}
		items = append(items, typed)
	}

	return remainder, items, nil
}

// CollectAs is the type-safe form of Store.Collect.
func CollectAs[K, T any](s *Store, namespace string, keyFn func(T) K, items []T, requested ...K) {
	generic := make([]any, len(items))
	for i, item := range items {
		generic[i] = item
	}

	ids := make([]any, len(requested))
	for i, id := range requested {
		ids[i] = id
	}

	s.Collect(namespace, func(item any) any {
		typed, _ := item.(T)
		return keyFn(typed)
	}, generic, ids...)
}
