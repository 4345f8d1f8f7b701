package prefetch

import "context"

type storeContextKey struct{}

// WithStore attaches s to ctx so repository decorators further down the call
// chain share the same unit-of-work cache.
func WithStore(ctx context.Context, s *Store) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, storeContextKey{}, s)
}

// FromContext returns the Store attached to ctx, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(storeContextKey{}).(*Store)
	return s, ok && s != nil
}
