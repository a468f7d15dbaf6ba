package linker

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// InternTable is the Go analog of mold's tbb::concurrent_hash_map-backed
// ConcurrentMap<T> (mold.h's ConcurrentMap<ValueT>): insert(key) returns
// a stable pointer to either the newly installed value or whatever
// another goroutine installed first, and concurrent inserts of the same
// key always agree on which pointer won. xsync.MapOf is a sharded,
// lock-light concurrent map; sync.Map was considered and rejected
// because LoadOrStore on it forces an allocation of the candidate value
// on every call even when it loses the race, which matters here since
// this is called once per global symbol and once per string piece
// across every input file.
type InternTable[T any] struct {
	m *xsync.MapOf[string, *T]
}

func NewInternTable[T any]() *InternTable[T] {
	return &InternTable[T]{m: xsync.NewMapOf[string, *T]()}
}

// Insert returns the table's pointer for key, installing newVal() only
// if no entry exists yet. newVal runs only when key is absent, at most
// once per key, while the table holds that key's bucket lock.
func (t *InternTable[T]) Insert(key string, newVal func() *T) *T {
	v, _ := t.m.LoadOrCompute(key, func() *T {
		return newVal()
	})
	return v
}

func (t *InternTable[T]) Get(key string) (*T, bool) {
	return t.m.Load(key)
}

func (t *InternTable[T]) Len() int {
	return t.m.Size()
}

// Range iterates in no particular order, matching the teacher's (and
// mold's) "order doesn't matter here, offset assignment sorts
// afterwards" posture.
func (t *InternTable[T]) Range(f func(key string, val *T) bool) {
	t.m.Range(f)
}
