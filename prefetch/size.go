package prefetch

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// slotOverhead approximates the bookkeeping cost of one map entry.
const slotOverhead = 48

// Sizer estimates how many bytes an item occupies. Results are approximate and
// only used for accounting; they are never enforced.
type Sizer interface {
	Size(item any) int64
}

// SizerFunc adapts a function to the Sizer interface.
type SizerFunc func(item any) int64

// Size calls f(item).
func (f SizerFunc) Size(item any) int64 {
	return f(item)
}

// MsgpackSizer measures an item by the length of its msgpack encoding.
type MsgpackSizer struct{}

// Size returns the encoded length of item, or the size of its type when it
// cannot be encoded. nil costs nothing.
func (MsgpackSizer) Size(item any) int64 {
	if item == nil {
		return 0
	}
	data, err := msgpack.Marshal(item)
	if err != nil {
		return int64(reflect.TypeOf(item).Size())
	}
	return int64(len(data))
}
