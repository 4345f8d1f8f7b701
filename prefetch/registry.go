package prefetch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry hands out one Store per unit of work (typically a request) and
// tracks the live ones so they can be inspected or ended by id.
type Registry struct {
	stores *xsync.MapOf[string, *Store]
	config *Config
	opts   []Option
	logger *slog.Logger
}

// NewRegistry creates a Registry whose stores all share cfg. A nil logger
// falls back to slog.Default().
func NewRegistry(cfg *Config, logger *slog.Logger, opts ...Option) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		stores: xsync.NewMapOf[string, *Store](),
		config: cfg,
		opts:   opts,
		logger: logger,
	}
}

// Begin starts a unit of work. The returned context carries the new Store.
func (r *Registry) Begin(ctx context.Context) (context.Context, *Store, string) {
	id := uuid.NewString()
	s := NewStore(r.config, r.opts...)
	r.stores.Store(id, s)

	r.logger.Debug("prefetch store started", "unit", id)
	return WithStore(ctx, s), s, id
}

// Get returns the live Store for id.
func (r *Registry) Get(id string) (*Store, bool) {
	return r.stores.Load(id)
}

// End finishes the unit of work id, logging its final footprint and any
// recorded errors before resetting the store. It reports whether id was live.
func (r *Registry) End(id string) bool {
	s, ok := r.stores.LoadAndDelete(id)
	if !ok {
		return false
	}

	errs := s.Errors()
	attrs := []any{
		"unit", id,
		"size", s.Size(),
		"namespaces", len(s.Namespaces()),
		"errors", len(errs),
	}
	if len(errs) > 0 {
		r.logger.Warn("prefetch store ended with errors", append(attrs, "first_error", errs[0].Error())...)
	} else {
		r.logger.Debug("prefetch store ended", attrs...)
	}

	s.Reset()
	return true
}

// Len returns the number of live units of work.
func (r *Registry) Len() int {
	return r.stores.Size()
}

// Config returns the configuration shared by every store of this registry.
func (r *Registry) Config() *Config {
	return r.config
}
