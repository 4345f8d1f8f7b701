package prefetch

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// KeyFunc extracts the primary key from an item. It must be pure and total
// over the item types stored in a namespace.
type KeyFunc func(item any) any

// KeyNormalizer maps a primary key to the string the store indexes by.
type KeyNormalizer interface {
	NormalizeKey(key any) string
}

// tagged marks keys that are not spelled out as text (nil, hashed composites).
// Text keys starting with the marker get it doubled, so no text key can land
// on a tagged slot.
const tagged = "\x00"

// defaultKeyNormalizer folds equivalent scalar keys onto one slot, so 7,
// int64(7), uint8(7) and "7" all address the same row.
type defaultKeyNormalizer struct{}

// NewDefaultKeyNormalizer returns the normalizer used by NewStore.
func NewDefaultKeyNormalizer() KeyNormalizer {
	return defaultKeyNormalizer{}
}

func (n defaultKeyNormalizer) NormalizeKey(key any) string {
	if key == nil {
		return tagged + "nil"
	}

	rv := reflect.ValueOf(key)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return tagged + "nil"
	}

	switch k := key.(type) {
	case string:
		return text(k)
	case []byte:
		return text(string(k))
	case fmt.Stringer:
		return text(k.String())
	}

	switch rv.Kind() {
	case reflect.Ptr:
		return n.NormalizeKey(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Bool, reflect.Float32, reflect.Float64, reflect.String:
		return text(fmt.Sprintf("%v", key))
	}

	return n.hashKey(key)
}

// hashKey handles composite keys (structs, arrays, maps) by hashing their
// msgpack encoding. Map keys are sorted so the result is deterministic.
func (n defaultKeyNormalizer) hashKey(key any) string {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(key); err != nil {
		return fmt.Sprintf("%sfallback:%T:%v", tagged, key, key)
	}
	return fmt.Sprintf("%sh:%016x", tagged, xxhash.Sum64(buf.Bytes()))
}

func text(s string) string {
	if strings.HasPrefix(s, tagged) {
		return tagged + s
	}
	return s
}
