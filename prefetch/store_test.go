package prefetch

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-prefetch/pkg/testsupport"
)

type user struct {
	ID    int64  `json:"id" msgpack:"id"`
	Name  string `json:"name" msgpack:"name"`
	Email string `json:"email" msgpack:"email"`
}

func userKey(item any) any { return item.(user).ID }

func loadUsers(t *testing.T) []user {
	t.Helper()
	var users []user
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("users.json"), &users)
	return users
}

func anys[T any](in ...T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func TestFetch_UnpopulatedNamespaceReturnsInput(t *testing.T) {
	s := NewStore(nil)

	keys := anys(3, 1, 3, 9)
	remainder, items := s.Fetch("users", keys)

	assert.Equal(t, keys, remainder)
	assert.Empty(t, items)
}

func TestFetch_EmptyKeys(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1}))

	remainder, items := s.Fetch("users", nil)
	assert.Empty(t, remainder)
	assert.Empty(t, items)
}

func TestFetchCollect_PartialHitWithConfirmedAbsence(t *testing.T) {
	s := NewStore(nil)
	a := user{ID: 1, Name: "A"}
	b := user{ID: 2, Name: "B"}

	s.Collect("users", userKey, anys(a, b), 1, 2, 3)

	remainder, items := s.Fetch("users", anys(1, 2, 3, 4))
	assert.Equal(t, anys(4), remainder)
	assert.Equal(t, anys(a, b), items)

	slot, ok := s.Lookup("users", 3)
	require.True(t, ok)
	assert.True(t, slot.IsAbsent())
}

func TestFetch_PreservesOrderAndDuplicates(t *testing.T) {
	s := NewStore(nil)
	a := user{ID: 1, Name: "A"}
	s.Collect("users", userKey, anys(a), 1, 2)

	remainder, items := s.Fetch("users", anys(7, 1, 2, 7, 1, 8))
	assert.Equal(t, anys(7, 7, 8), remainder)
	assert.Equal(t, anys(a, a), items)
}

func TestCollect_ThenFetchNeverReturnsCollectedKeys(t *testing.T) {
	users := loadUsers(t)
	s := NewStore(nil)

	requested := anys(int64(1), int64(2), int64(3), int64(4), int64(5))
	s.Collect("users", userKey, anys(users...), requested...)

	remainder, items := s.Fetch("users", requested)
	assert.Empty(t, remainder)
	assert.Len(t, items, len(users))
}

func TestCollect_LastWriteWins(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1, Name: "old"}, user{ID: 1, Name: "new"}))

	_, items := s.Fetch("users", anys(1))
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].(user).Name)
}

func TestCollect_PresentSlotOverridesAbsence(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, nil, 1)

	_, items := s.Fetch("users", anys(1))
	assert.Empty(t, items)

	s.Collect("users", userKey, anys(user{ID: 1, Name: "late"}), 1)
	_, items = s.Fetch("users", anys(1))
	assert.Equal(t, anys(user{ID: 1, Name: "late"}), items)
}

func TestCollect_RequestedIDsDoNotOverwritePresentItems(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1, Name: "A"}))
	s.Collect("users", userKey, nil, 1)

	slot, ok := s.Lookup("users", 1)
	require.True(t, ok)
	item, present := slot.Item()
	assert.True(t, present)
	assert.Equal(t, user{ID: 1, Name: "A"}, item)
}

func TestCollect_IsIdempotent(t *testing.T) {
	users := loadUsers(t)
	once := NewStore(nil)
	twice := NewStore(nil)

	requested := anys(1, 2, 3, 4)
	once.Collect("users", userKey, anys(users...), requested...)
	twice.Collect("users", userKey, anys(users...), requested...)
	twice.Collect("users", userKey, anys(users...), requested...)

	lookup := anys(1, 2, 3, 4, 5, 6)
	r1, i1 := once.Fetch("users", lookup)
	r2, i2 := twice.Fetch("users", lookup)

	assert.Equal(t, r1, r2)
	assert.Equal(t, i1, i2)
	assert.Equal(t, once.Len("users"), twice.Len("users"))
}

func TestSlot_FalsyItemsArePresent(t *testing.T) {
	s := NewStore(nil)
	keyed := map[any]string{false: "flag", 0: "zero", "": "empty"}
	keyFn := func(item any) any { return keyed[item] }

	s.Collect("values", keyFn, []any{false, 0, ""})

	remainder, items := s.Fetch("values", anys("flag", "zero", "empty"))
	assert.Empty(t, remainder)
	assert.Equal(t, []any{false, 0, ""}, items)
}

func TestSlot_NilItemIsPresent(t *testing.T) {
	slot := Present(nil)
	item, ok := slot.Item()
	assert.True(t, ok)
	assert.Nil(t, item)
	assert.False(t, slot.IsAbsent())
	assert.True(t, Absent().IsAbsent())
}

func TestFetch_NamespacesAreIsolated(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1}), 1, 2)

	remainder, items := s.Fetch("groups", anys(1, 2))
	assert.Equal(t, anys(1, 2), remainder)
	assert.Empty(t, items)
}

func TestCollect_EmptyCreatesNamespace(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, nil)

	assert.Equal(t, []string{"users"}, s.Namespaces())
	remainder, _ := s.Fetch("users", anys(1))
	assert.Equal(t, anys(1), remainder)
}

func TestReset_BehavesAsNeverPopulated(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1}), 1, 2)
	s.RecordError(errors.New("source timeout"))
	require.NotZero(t, s.Size())

	same := s.Reset()
	assert.Same(t, s, same)

	remainder, items := s.Fetch("users", anys(1, 2))
	assert.Equal(t, anys(1, 2), remainder)
	assert.Empty(t, items)
	assert.Zero(t, s.Size())
	assert.Empty(t, s.Errors())
	assert.Empty(t, s.Namespaces())
}

func TestSize_NonDecreasingAcrossCollects(t *testing.T) {
	users := loadUsers(t)
	s := NewStore(nil)

	last := s.Size()
	assert.Zero(t, last)

	for i := 0; i < 3; i++ {
		s.Collect("users", userKey, anys(users...), 1, 2, 3, 4, 5)
		s.Collect("users", userKey, nil)
		s.Collect(fmt.Sprintf("ns-%d", i), userKey, nil, 10)

		current := s.Size()
		assert.GreaterOrEqual(t, current, last)
		last = current
	}

	s.Forget("users")
	assert.Equal(t, last, s.Size())
}

func TestSize_UsesSizer(t *testing.T) {
	s := NewStore(nil, WithSizer(SizerFunc(func(any) int64 { return 1000 })))
	s.Collect("users", userKey, anys(user{ID: 1}, user{ID: 2}))

	assert.GreaterOrEqual(t, s.Size(), int64(2000))
}

func TestKeys_EquivalentScalarsShareSlot(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 7, Name: "seven"}))

	remainder, items := s.Fetch("users", []any{7, int32(7), uint8(7), "7"})
	assert.Empty(t, remainder)
	assert.Len(t, items, 4)
}

func TestKeys_Normalizer(t *testing.T) {
	n := NewDefaultKeyNormalizer()
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	var nilPtr *int
	seven := 7

	assert.Equal(t, n.NormalizeKey(nil), n.NormalizeKey(nilPtr))
	assert.Equal(t, "7", n.NormalizeKey(&seven))
	assert.Equal(t, id.String(), n.NormalizeKey(id))
	assert.Equal(t, "true", n.NormalizeKey(true))

	type compositeKey struct {
		TenantID int
		Code     string
	}
	k1 := n.NormalizeKey(compositeKey{TenantID: 1, Code: "a"})
	k2 := n.NormalizeKey(compositeKey{TenantID: 1, Code: "a"})
	k3 := n.NormalizeKey(compositeKey{TenantID: 2, Code: "a"})
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "h:")
}

func TestKeys_TextNeverCollidesWithTaggedKeys(t *testing.T) {
	n := NewDefaultKeyNormalizer()

	nilKey := n.NormalizeKey(nil)
	hashed := n.NormalizeKey([]any{"tenant-1", 7})

	for _, key := range []string{"nil", nilKey, hashed, hashed[1:]} {
		assert.NotEqual(t, nilKey, n.NormalizeKey(key), "text key %q", key)
		assert.NotEqual(t, hashed, n.NormalizeKey(key), "text key %q", key)
	}
	assert.NotEqual(t, n.NormalizeKey(nilKey), n.NormalizeKey(n.NormalizeKey(nilKey)))

	s := NewStore(nil)
	s.Collect("users", func(item any) any { return nil }, anys("nobody"))
	remainder, items := s.Fetch("users", anys("nil"))
	assert.Equal(t, anys("nil"), remainder)
	assert.Empty(t, items)
}

func TestForget(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1}, user{ID: 2}), 3)

	s.Forget("users", 1, 3)
	remainder, items := s.Fetch("users", anys(1, 2, 3))
	assert.Equal(t, anys(1, 3), remainder)
	assert.Len(t, items, 1)

	s.Forget("users")
	assert.Empty(t, s.Namespaces())

	s.Forget("missing", 1)
}

func TestErrors_RecordAndCopy(t *testing.T) {
	s := NewStore(nil)
	s.RecordError(nil)
	s.RecordError(errors.New("first"))
	s.RecordError(errors.New("second"))

	errs := s.Errors()
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "first")
	assert.EqualError(t, errs[1], "second")

	errs[0] = nil
	assert.NotNil(t, s.Errors()[0])
}

func TestConfigToggles(t *testing.T) {
	cfg := &Config{}
	s := NewStore(cfg)

	assert.Same(t, s, s.SetHeuristics(true).SetTraining(true))
	assert.True(t, cfg.Heuristics())
	assert.True(t, cfg.Training())
	assert.Same(t, cfg, s.Config())

	s.SetTraining(false)
	assert.False(t, cfg.Training())
	assert.Equal(t, Flags{Heuristics: true}, cfg.Flags())

	// toggles never change cache behaviour
	remainder, _ := s.Fetch("users", anys(1))
	assert.Equal(t, anys(1), remainder)
}

func TestFetchAs_CollectAs(t *testing.T) {
	users := loadUsers(t)
	s := NewStore(nil)

	remainder, got, err := FetchAs[int64, user](s, "users", []int64{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, remainder)
	assert.Empty(t, got)

	CollectAs(s, "users", func(u user) int64 { return u.ID }, users[:2], remainder...)

	remainder, got, err = FetchAs[int64, user](s, "users", []int64{2, 1, 4, 6})
	require.NoError(t, err)
	assert.Equal(t, []int64{6}, remainder)
	assert.Equal(t, []user{users[1], users[0]}, got)
}

func TestCollectAs_NilInterfaceItem(t *testing.T) {
	s := NewStore(nil)
	keyOf := func(item fmt.Stringer) string {
		if item == nil {
			return "none"
		}
		return item.String()
	}

	require.NotPanics(t, func() {
		CollectAs(s, "ids", keyOf, []fmt.Stringer{nil, uuid.Nil})
	})

	slot, ok := s.Lookup("ids", "none")
	require.True(t, ok)
	item, present := slot.Item()
	assert.True(t, present)
	assert.Nil(t, item)
	assert.Equal(t, 2, s.Len("ids"))
}

func TestFetchAs_WrongType(t *testing.T) {
	s := NewStore(nil)
	s.Collect("users", userKey, anys(user{ID: 1}))

	_, _, err := FetchAs[int, string](s, "users", []int{1})
	assert.ErrorIs(t, err, ErrItemType)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ns := fmt.Sprintf("ns-%d", g%2)
			for i := 0; i < 100; i++ {
				s.Collect(ns, userKey, anys(user{ID: int64(i)}), i, i+1000)
				s.Fetch(ns, anys(i, i+1000, i+2000))
				_ = s.Size()
			}
		}(g)
	}
	wg.Wait()

	for _, ns := range []string{"ns-0", "ns-1"} {
		assert.Equal(t, 200, s.Len(ns))
	}
}
