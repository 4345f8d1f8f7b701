// Package loader feeds prefetch stores from a SQL database through bun.
package loader

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/goliatone/go-repository-prefetch/prefetch"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ErrUnsupportedModel is returned for models bun cannot map to a table with a
// single primary key.
var ErrUnsupportedModel = errors.New("loader: model must be a struct with exactly one primary key")

// BunLoader loads rows of model T by primary key. The store namespace is the
// table name and the key is the value of the primary key column.
type BunLoader[T any] struct {
	db    bun.IDB
	table *schema.Table
	pk    *schema.Field
}

// NewBunLoader inspects T's bun schema. T must be a struct type, not a pointer.
func NewBunLoader[T any](db *bun.DB) (*BunLoader[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedModel, typ)
	}

	table := db.Table(typ)
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrUnsupportedModel, table.Name, len(table.PKs))
	}

	return &BunLoader[T]{db: db, table: table, pk: table.PKs[0]}, nil
}

// WithDB returns a copy of the loader that queries through db, e.g. a bun.Tx.
func (l *BunLoader[T]) WithDB(db bun.IDB) *BunLoader[T] {
	clone := *l
	clone.db = db
	return &clone
}

// Namespace returns the table name used as store namespace.
func (l *BunLoader[T]) Namespace() string {
	return l.table.Name
}

// Key returns the primary key value of row.
func (l *BunLoader[T]) Key(row T) any {
	return l.pk.Value(reflect.ValueOf(row)).Interface()
}

// Load selects the rows whose primary key is in ids. Ids with no row are
// simply missing from the result.
func (l *BunLoader[T]) Load(ctx context.Context, ids []any) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []T
	err := l.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.? IN (?)", bun.Ident(l.pk.Name), bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", l.table.Name, err)
	}
	return rows, nil
}

// Find resolves ids through store, loading only the remainder and recording
// every requested id the table does not contain. Rows come back in input
// order, one per occurrence. Load failures are also recorded on the store.
func (l *BunLoader[T]) Find(ctx context.Context, store *prefetch.Store, ids ...any) ([]T, error) {
	ns := l.Namespace()

	remainder, _, err := prefetch.FetchAs[any, T](store, ns, ids)
	if err != nil {
		return nil, err
	}

	if len(remainder) > 0 {
		rows, err := l.Load(ctx, remainder)
		if err != nil {
			store.RecordError(err)
			return nil, err
		}
		prefetch.CollectAs(store, ns, l.Key, rows, remainder...)
	}

	_, rows, err := prefetch.FetchAs[any, T](store, ns, ids)
	return rows, err
}
