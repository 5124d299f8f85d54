// Package refstore holds the values extracted during a reference run so that
// candidate runs can be compared against them.
package refstore

import (
	"sort"

	"github.com/giantswarm/version-matrix/internal/compare"
)

// Snapshot maps test case IDs to the values the reference version produced.
// A Snapshot is immutable: values are stored in canonical form and handed out
// as copies, so no candidate run can alter what later runs compare against.
type Snapshot struct {
	values map[int]any
}

// Builder fills a snapshot while the reference run executes.
type Builder struct {
	values map[int]any
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{values: make(map[int]any)}
}

// Put records the reference value for a test case.
func (b *Builder) Put(id int, v any) {
	b.values[id] = compare.Normalize(v)
}

// Freeze returns an immutable snapshot of the recorded values. The builder
// can keep being used without affecting the returned snapshot.
func (b *Builder) Freeze() *Snapshot {
	values := make(map[int]any, len(b.values))
	for id, v := range b.values {
		values[id] = deepCopy(v)
	}
	return &Snapshot{values: values}
}

// Get returns a copy of the reference value for id.
func (s *Snapshot) Get(id int) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[id]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Len returns the number of recorded values.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// IDs returns the recorded test case IDs in ascending order.
func (s *Snapshot) IDs() []int {
	if s == nil {
		return nil
	}
	ids := make([]int, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	default:
		return x
	}
}
