package di

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-prefetch/cache"
	"github.com/goliatone/go-repository-prefetch/prefetch"
)

func TestNewContainer(t *testing.T) {
	tierConfig := cache.Config{
		Capacity:             1000,
		NumShards:            16,
		TTL:                  time.Minute,
		EvictionPercentage:   10,
		MissingRecordStorage: true,
	}
	prefetchConfig := prefetch.NewConfig(prefetch.Flags{Heuristics: true})

	container, err := NewContainer(Config{Prefetch: prefetchConfig, SharedTier: &tierConfig}, nil)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container.Registry() == nil {
		t.Error("Container should have a non-nil registry")
	}
	if container.SharedTier() == nil {
		t.Error("Container should have a shared tier when configured")
	}
	if container.Logger() == nil {
		t.Error("Container should fall back to the default logger")
	}
	if container.Registry().Config() != prefetchConfig {
		t.Error("registry should share the prefetch config")
	}

	stored := container.Config()
	if stored.SharedTier.Capacity != tierConfig.Capacity {
		t.Errorf("Expected capacity %d, got %d", tierConfig.Capacity, stored.SharedTier.Capacity)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	if container.SharedTier() == nil {
		t.Error("defaults should enable the shared tier")
	}
	if container.Config().Prefetch == nil {
		t.Error("defaults should carry a prefetch config")
	}
}

func TestNewContainer_WithoutSharedTier(t *testing.T) {
	container, err := NewContainer(Config{}, nil)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container.SharedTier() != nil {
		t.Error("shared tier should be disabled")
	}
	if container.Config().Prefetch == nil {
		t.Error("missing prefetch config should be defaulted")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	bad := cache.Config{Capacity: -1}
	if _, err := NewContainer(Config{SharedTier: &bad}, nil); err == nil {
		t.Error("expected error for invalid shared tier config")
	}
}

func TestContainer_BeginEnd(t *testing.T) {
	container, err := NewContainer(Config{}, nil)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	ctx, id := container.Begin(context.Background())
	store, ok := prefetch.FromContext(ctx)
	if !ok {
		t.Fatal("Begin should attach a store to the context")
	}
	if got, _ := container.Registry().Get(id); got != store {
		t.Error("registry should track the started store")
	}

	container.End(id)
	if container.Registry().Len() != 0 {
		t.Error("End should release the store")
	}
}
