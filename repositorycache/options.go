package repositorycache

import (
	"log/slog"

	"github.com/goliatone/go-repository-prefetch/cache"
)

type settings struct {
	namespace string
	idColumn  string
	idFields  []string
	tier      cache.SharedTier
	logger    *slog.Logger
}

// Option configures a PrefetchRepository.
type Option func(*settings)

// WithNamespace overrides the namespace derived from the record type.
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithIDColumn sets the primary key column used for batch loads. Default "id".
func WithIDColumn(column string) Option {
	return func(s *settings) {
		if column != "" {
			s.idColumn = column
		}
	}
}

// WithIDField sets the struct field holding the primary key. By default ID,
// Id and id are tried in that order.
func WithIDField(fields ...string) Option {
	return func(s *settings) {
		if len(fields) > 0 {
			s.idFields = fields
		}
	}
}

// WithSharedTier consults tier for the remainder of a fetch before the base
// repository.
func WithSharedTier(tier cache.SharedTier) Option {
	return func(s *settings) {
		s.tier = tier
	}
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}
