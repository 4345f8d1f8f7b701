package di

import (
	"context"
	"log/slog"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-prefetch/cache"
	"github.com/goliatone/go-repository-prefetch/prefetch"
	"github.com/goliatone/go-repository-prefetch/repositorycache"
)

// Config selects the components a Container wires together.
type Config struct {
	// Prefetch is shared by every store the container hands out. nil uses
	// prefetch.DefaultConfig().
	Prefetch *prefetch.Config

	// SharedTier enables the process-wide tier behind the stores. nil disables it.
	SharedTier *cache.Config
}

// DefaultConfig enables the shared tier with its default settings.
func DefaultConfig() Config {
	tier := cache.DefaultConfig()
	return Config{
		Prefetch:   prefetch.DefaultConfig(),
		SharedTier: &tier,
	}
}

// Container provides dependency injection for prefetch components. It owns the
// store registry, the optional shared tier and the logger, and builds
// prefetching repositories on top of them.
type Container struct {
	registry *prefetch.Registry
	tier     cache.SharedTier
	logger   *slog.Logger
	config   Config
}

// NewContainer creates a container from cfg. A nil logger falls back to
// slog.Default().
func NewContainer(cfg Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch == nil {
		cfg.Prefetch = prefetch.DefaultConfig()
	}

	var tier cache.SharedTier
	if cfg.SharedTier != nil {
		var err error
		if tier, err = cache.NewSharedTier(*cfg.SharedTier); err != nil {
			return nil, err
		}
	}

	return &Container{
		registry: prefetch.NewRegistry(cfg.Prefetch, logger),
		tier:     tier,
		logger:   logger,
		config:   cfg,
	}, nil
}

// NewContainerWithDefaults creates a container using DefaultConfig.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(DefaultConfig(), nil)
}

// Registry returns the registry handing out per-unit-of-work stores.
func (c *Container) Registry() *prefetch.Registry {
	return c.registry
}

// SharedTier returns the shared tier, or nil when disabled.
func (c *Container) SharedTier() cache.SharedTier {
	return c.tier
}

// Logger returns the container logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Config returns the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Begin starts a unit of work and returns a context carrying its store.
func (c *Container) Begin(ctx context.Context) (context.Context, string) {
	ctx, _, id := c.registry.Begin(ctx)
	return ctx, id
}

// End finishes the unit of work started by Begin.
func (c *Container) End(id string) {
	c.registry.End(id)
}

// NewPrefetchRepository wraps base with the container's shared tier and logger.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewPrefetchRepository[User](container, baseUserRepository)
func NewPrefetchRepository[T any](c *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.PrefetchRepository[T] {
	defaults := []repositorycache.Option{
		repositorycache.WithLogger(c.logger),
	}
	if c.tier != nil {
		defaults = append(defaults, repositorycache.WithSharedTier(c.tier))
	}
	return repositorycache.New(base, append(defaults, opts...)...)
}
