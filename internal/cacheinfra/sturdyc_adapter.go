package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed shared tier.
type Config struct {
	// Capacity defines the maximum number of entries the tier can store.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Default: 256
	NumShards int

	// TTL is the time-to-live for cached rows and missing record markers.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the tier reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EarlyRefresh configures early refresh behavior. If nil, early refresh is
	// disabled.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers ids the source did not return, so the
	// tier can confirm absence across units of work.
	MissingRecordStorage bool

	// EvictionInterval sets how often the tier checks for expired entries.
	// Zero uses the sturdyc default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:             10000,
		NumShards:            256,
		TTL:                  5 * time.Minute,
		EvictionPercentage:   10,
		MissingRecordStorage: true,
	}
}

// ToSturdycOptions maps the optional settings to sturdyc options. Capacity,
// NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks the configuration values. Errors are validation.Errors keyed
// by field name.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}

	if c.EarlyRefresh == nil {
		return nil
	}

	er := c.EarlyRefresh
	nonNegative := validation.Min(time.Duration(0))
	return validation.ValidateStruct(er,
		validation.Field(&er.MinAsyncRefreshTime, nonNegative),
		validation.Field(&er.MaxAsyncRefreshTime, nonNegative),
		validation.Field(&er.SyncRefreshTime, nonNegative),
		validation.Field(&er.RetryBaseDelay, nonNegative),
	)
}

// BatchFetchFn loads the rows for ids from the source of truth, keyed by id.
// Ids left out of the result are treated as missing.
type BatchFetchFn func(ctx context.Context, ids []string) (map[string]any, error)

// SturdycTier wraps a sturdyc client and exposes namespaced batch lookups.
type SturdycTier struct {
	client *sturdyc.Client[any]
}

// NewSturdycTier validates cfg and builds the sturdyc client.
func NewSturdycTier(cfg Config) (*SturdycTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycTier{client: client}, nil
}

// FetchBatch returns the rows for ids in namespace, calling fetchFn only for
// ids the tier has neither cached nor marked missing. Missing ids are absent
// from the returned map.
func (t *SturdycTier) FetchBatch(ctx context.Context, namespace string, ids []string, fetchFn BatchFetchFn) (map[string]any, error) {
	if len(ids) == 0 {
		return map[string]any{}, nil
	}

	keyFn := t.client.BatchKeyFn(namespace)
	result, err := t.client.GetOrFetchBatch(ctx, ids, keyFn, func(ctx context.Context, ids []string) (map[string]any, error) {
		return fetchFn(ctx, ids)
	})
	if err != nil && !errors.Is(err, sturdyc.ErrOnlyCachedRecords) {
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// Invalidate drops cached rows and missing markers for ids in namespace.
func (t *SturdycTier) Invalidate(ctx context.Context, namespace string, ids ...string) error {
	keyFn := t.client.BatchKeyFn(namespace)
	for _, id := range ids {
		t.client.Delete(keyFn(id))
	}
	return nil
}

// InvalidateNamespace drops every entry that belongs to namespace.
func (t *SturdycTier) InvalidateNamespace(ctx context.Context, namespace string) error {
	prefix := t.client.BatchKeyFn(namespace)("")
	for _, key := range t.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			t.client.Delete(key)
		}
	}
	return nil
}

// Len returns the number of entries held by the tier.
func (t *SturdycTier) Len() int {
	return t.client.Size()
}
