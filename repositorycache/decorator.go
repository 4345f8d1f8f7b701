package repositorycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-prefetch/cache"
	"github.com/goliatone/go-repository-prefetch/prefetch"
	"github.com/uptrace/bun"
)

// Interface assertion to ensure PrefetchRepository implements Repository[T]
var _ repository.Repository[any] = (*PrefetchRepository[any])(nil)

// ErrNotFound is returned when the prefetch store has confirmed that a record
// does not exist.
var ErrNotFound = errors.New("repositorycache: record not found")

// ErrNoPrimaryKey is recorded on the store for records the decorator cannot
// key. Such records are returned to the caller but never collected.
var ErrNoPrimaryKey = errors.New("repositorycache: record has no primary key")

var keyNormalizer = prefetch.NewDefaultKeyNormalizer()

// PrefetchRepository decorates a base repository with the unit-of-work
// prefetch store carried by the request context. Without a store in the
// context every call passes straight through.
type PrefetchRepository[T any] struct {
	base      repository.Repository[T]
	namespace string
	idColumn  string
	idFields  []string
	idType    reflect.Type
	tier      cache.SharedTier
	logger    *slog.Logger
	stats     *stats
}

// New creates a PrefetchRepository that wraps base.
func New[T any](base repository.Repository[T], opts ...Option) *PrefetchRepository[T] {
	s := settings{
		idColumn: "id",
		idFields: []string{"ID", "Id", "id"},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.namespace == "" {
		s.namespace = namespaceFor(reflect.TypeOf((*T)(nil)).Elem())
	}

	return &PrefetchRepository[T]{
		base:      base,
		namespace: s.namespace,
		idColumn:  s.idColumn,
		idFields:  s.idFields,
		idType:    idFieldType(reflect.TypeOf((*T)(nil)).Elem(), s.idFields),
		tier:      s.tier,
		logger:    s.logger.With("namespace", s.namespace),
		stats:     &stats{},
	}
}

// Namespace returns the store namespace records of this repository live in.
func (c *PrefetchRepository[T]) Namespace() string {
	return c.namespace
}

// Stats returns the counters gathered while the store's Training flag was on.
func (c *PrefetchRepository[T]) Stats() Stats {
	return c.stats.snapshot()
}

// GetByIDs returns the records for ids in input order, one entry per
// occurrence. Ids already resolved by the store are not queried again; ids
// the source does not return are remembered as missing.
//
// Ids are first parsed into the type of the record's ID field, so "007" and
// "7" address the same integer key and UUIDs match in any case.
func (c *PrefetchRepository[T]) GetByIDs(ctx context.Context, ids []string) ([]T, error) {
	ids = c.canonicalIDs(ids)

	store, ok := c.storeFor(ctx)
	if !ok {
		rows, err := c.loadRows(ctx, uniqueIDs(ids))
		if err != nil {
			return nil, err
		}
		return arrange(ids, rows), nil
	}

	remainder, _, err := prefetch.FetchAs[string, T](store, c.namespace, ids)
	if err != nil {
		return nil, err
	}
	c.observe(store, len(ids)-len(remainder), len(remainder))

	if len(remainder) > 0 {
		missing := uniqueIDs(remainder)
		rows, err := c.loadRows(ctx, missing)
		if err != nil {
			store.RecordError(fmt.Errorf("%s: load %d ids: %w", c.namespace, len(missing), err))
			c.logger.Warn("prefetch load failed", "ids", len(missing), "error", err)
			return nil, err
		}
		prefetch.CollectAs(store, c.namespace, c.keyOf, arrange(missing, rows), missing...)
	}

	_, items, err := prefetch.FetchAs[string, T](store, c.namespace, ids)
	return items, err
}

// GetByID retrieves a record by ID, answering from the prefetch store when it
// can. Calls with criteria pass through since they may filter the record out.
func (c *PrefetchRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	store, ok := c.storeFor(ctx)
	if !ok || len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}

	var zero T
	key := c.canonicalID(id)
	if slot, found := store.Lookup(c.namespace, key); found {
		c.observe(store, 1, 0)
		item, present := slot.Item()
		if !present {
			return zero, fmt.Errorf("%w: %s %s", ErrNotFound, c.namespace, id)
		}
		record, ok := item.(T)
		if !ok {
			return zero, fmt.Errorf("%w: namespace %q holds %T", prefetch.ErrItemType, c.namespace, item)
		}
		return record, nil
	}

	c.observe(store, 0, 1)
	c.countLoad(store)
	record, err := c.base.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			prefetch.CollectAs(store, c.namespace, c.keyOf, nil, key)
		} else {
			store.RecordError(fmt.Errorf("%s: get %s: %w", c.namespace, id, err))
		}
		return zero, err
	}

	if records, _ := c.identified(store, record); len(records) > 0 {
		prefetch.CollectAs(store, c.namespace, c.keyOf, records, key)
	}
	return record, nil
}

// Get retrieves a single record. With heuristics on, the result is collected.
func (c *PrefetchRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	record, err := c.base.Get(ctx, criteria...)
	if err == nil {
		c.collectOpportunistic(ctx, record)
	}
	return record, err
}

// List retrieves multiple records. With heuristics on, the results are collected.
func (c *PrefetchRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	records, total, err := c.base.List(ctx, criteria...)
	if err == nil {
		c.collectOpportunistic(ctx, records...)
	}
	return records, total, err
}

// Count passes through to the base repository
func (c *PrefetchRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// GetByIdentifier retrieves a record by identifier. With heuristics on, the
// result is collected under its primary key.
func (c *PrefetchRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	record, err := c.base.GetByIdentifier(ctx, identifier, criteria...)
	if err == nil {
		c.collectOpportunistic(ctx, record)
	}
	return record, err
}

// Create creates a new record and writes it through to the store
func (c *PrefetchRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.writeThrough(ctx, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *PrefetchRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.forget(ctx, result)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *PrefetchRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.writeThrough(ctx, result...)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *PrefetchRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.forget(ctx, result...)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *PrefetchRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.writeThrough(ctx, result)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *PrefetchRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.forget(ctx, result)
	}
	return result, err
}

// Update updates a record
func (c *PrefetchRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.writeThrough(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *PrefetchRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.forget(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *PrefetchRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.writeThrough(ctx, result...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *PrefetchRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.forget(ctx, result...)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *PrefetchRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.writeThrough(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *PrefetchRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.forget(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *PrefetchRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.writeThrough(ctx, result...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *PrefetchRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.forget(ctx, result...)
	}
	return result, err
}

// Delete deletes a record and records it as missing
func (c *PrefetchRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.markDeleted(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *PrefetchRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.forget(ctx, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *PrefetchRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.forgetNamespace(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *PrefetchRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.forgetNamespace(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *PrefetchRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.forgetNamespace(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *PrefetchRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.forgetNamespace(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *PrefetchRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.markDeleted(ctx, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *PrefetchRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.forget(ctx, record)
	}
	return err
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *PrefetchRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *PrefetchRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *PrefetchRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *PrefetchRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *PrefetchRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *PrefetchRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *PrefetchRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *PrefetchRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// storeFor returns the prefetch store for ctx unless the caller opted out.
func (c *PrefetchRepository[T]) storeFor(ctx context.Context) (*prefetch.Store, bool) {
	if bypassed(ctx) {
		return nil, false
	}
	return prefetch.FromContext(ctx)
}

// loadRows fetches ids from the shared tier when configured, else from base.
func (c *PrefetchRepository[T]) loadRows(ctx context.Context, ids []string) (map[string]T, error) {
	if len(ids) == 0 {
		return map[string]T{}, nil
	}

	fetch := func(ctx context.Context, ids []string) (map[string]T, error) {
		store, ok := c.storeFor(ctx)
		if ok {
			c.countLoad(store)
		}
		c.logger.Debug("loading records", "ids", len(ids))

		records, _, err := c.base.List(ctx, c.whereIDs(ids))
		if err != nil {
			return nil, err
		}
		records, keys := c.identified(store, records...)
		rows := make(map[string]T, len(records))
		for i, record := range records {
			rows[keys[i]] = record
		}
		return rows, nil
	}

	if c.tier != nil {
		return cache.FetchBatchAs(ctx, c.tier, c.namespace, ids, fetch)
	}
	return fetch(ctx, ids)
}

// whereIDs restricts a select to the given primary keys.
func (c *PrefetchRepository[T]) whereIDs(ids []string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? IN (?)", bun.Ident(c.idColumn), bun.In(ids))
	}
}

// collectOpportunistic stores records returned by non-key reads when the
// heuristics flag is on.
func (c *PrefetchRepository[T]) collectOpportunistic(ctx context.Context, records ...T) {
	store, ok := c.storeFor(ctx)
	if !ok || !store.Config().Heuristics() || len(records) == 0 {
		return
	}
	if records, _ = c.identified(store, records...); len(records) > 0 {
		prefetch.CollectAs(store, c.namespace, c.keyOf, records)
	}
}

// writeThrough replaces the cached copies of records after a committed write.
func (c *PrefetchRepository[T]) writeThrough(ctx context.Context, records ...T) {
	store, ok := c.storeFor(ctx)
	records, keys := c.identified(store, records...)
	c.invalidateTier(ctx, keys...)
	if ok && len(records) > 0 {
		prefetch.CollectAs(store, c.namespace, c.keyOf, records)
	}
}

// forget drops records whose write may still be rolled back.
func (c *PrefetchRepository[T]) forget(ctx context.Context, records ...T) {
	store, ok := c.storeFor(ctx)
	_, keys := c.identified(store, records...)
	c.invalidateTier(ctx, keys...)
	if !ok || len(keys) == 0 {
		return
	}
	store.Forget(c.namespace, anyKeys(keys)...)
}

// markDeleted records a deleted record as confirmed missing.
func (c *PrefetchRepository[T]) markDeleted(ctx context.Context, record T) {
	store, ok := c.storeFor(ctx)
	_, keys := c.identified(store, record)
	if len(keys) == 0 {
		return
	}
	c.invalidateTier(ctx, keys...)
	if !ok {
		return
	}
	store.Forget(c.namespace, keys[0])
	prefetch.CollectAs(store, c.namespace, c.keyOf, nil, keys[0])
}

func (c *PrefetchRepository[T]) forgetNamespace(ctx context.Context) {
	if c.tier != nil {
		if err := c.tier.InvalidateNamespace(ctx, c.namespace); err != nil {
			c.logger.Warn("shared tier invalidation failed", "error", err)
		}
	}
	if store, ok := c.storeFor(ctx); ok {
		store.Forget(c.namespace)
	}
}

func (c *PrefetchRepository[T]) invalidateTier(ctx context.Context, ids ...string) {
	if c.tier == nil || len(ids) == 0 {
		return
	}
	if err := c.tier.Invalidate(ctx, c.namespace, ids...); err != nil {
		c.logger.Warn("shared tier invalidation failed", "ids", len(ids), "error", err)
	}
}

// keyOf extracts the primary key of a record already accepted by identified.
func (c *PrefetchRepository[T]) keyOf(record T) string {
	id, _ := c.extractID(record)
	return id
}

// identified keeps the records whose primary key can be extracted and returns
// their keys alongside. Every other record is reported on store, when there is
// one, and left out.
func (c *PrefetchRepository[T]) identified(store *prefetch.Store, records ...T) ([]T, []string) {
	kept := make([]T, 0, len(records))
	keys := make([]string, 0, len(records))
	for _, record := range records {
		id, err := c.extractID(record)
		if err != nil {
			err = fmt.Errorf("%s: %w", c.namespace, err)
			if store != nil {
				store.RecordError(err)
			}
			c.logger.Warn("record without primary key skipped", "error", err)
			continue
		}
		kept = append(kept, record)
		keys = append(keys, id)
	}
	return kept, keys
}

// extractID attempts to extract an ID field from a record using reflection
func (c *PrefetchRepository[T]) extractID(record T) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", fmt.Errorf("%w: nil record", ErrNoPrimaryKey)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: record of kind %s", ErrNoPrimaryKey, v.Kind())
	}

	for _, fieldName := range c.idFields {
		field := v.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			return keyNormalizer.NormalizeKey(field.Interface()), nil
		}
	}
	return "", fmt.Errorf("%w: none of %v on %s", ErrNoPrimaryKey, c.idFields, v.Type())
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// arrange orders rows by ids, skipping ids with no row.
func arrange[T any](ids []string, rows map[string]T) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if row, ok := rows[id]; ok {
			out = append(out, row)
		}
	}
	return out
}
