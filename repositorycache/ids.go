package repositorycache

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// idFieldType returns the type of the first exported field of t named in
// fields, with pointers removed, or nil when there is none.
func idFieldType(t reflect.Type, fields []string) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	for _, name := range fields {
		f, ok := t.FieldByName(name)
		if !ok || !f.IsExported() {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		return ft
	}
	return nil
}

// canonicalID rewrites id the way keyOf would print the matching record's
// key. Ids that do not parse as the ID field type are returned unchanged.
func (c *PrefetchRepository[T]) canonicalID(id string) string {
	t := c.idType
	if t == nil {
		return id
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		v := reflect.New(t)
		if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(id)); err == nil {
			return keyNormalizer.NormalizeKey(v.Elem().Interface())
		}
		return id
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
			return strconv.FormatInt(n, 10)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64); err == nil {
			return strconv.FormatUint(n, 10)
		}
	}
	return id
}

func (c *PrefetchRepository[T]) canonicalIDs(ids []string) []string {
	if c.idType == nil || c.idType.Kind() == reflect.String {
		return ids
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = c.canonicalID(id)
	}
	return out
}

func anyKeys(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
