package repositorycache

import (
	"context"
)

type bypassContextKey struct{}

// WithoutPrefetch marks ctx so decorators skip the prefetch store and go
// straight to the base repository, e.g. for reads that must see fresh rows.
func WithoutPrefetch(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func bypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(bypassContextKey{}).(bool)
	return skip
}
