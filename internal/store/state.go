package store

import "fintrack/internal/core"

// State is an immutable snapshot of a store. The slice and map it holds
// are never written after the snapshot is published; callers must not
// modify them either.
type State[T core.Record] struct {
	Collection []T
	Loading    bool
	Uploading  bool
	Deleting   map[int64]bool
	LastError  error
	LastResult *core.ImportResult
	Stats      *core.Stats
}

// IsDeleting reports whether a delete request for id is in flight.
func (s State[T]) IsDeleting(id int64) bool {
	return s.Deleting[id]
}

func withDeleting(m map[int64]bool, id int64, on bool) map[int64]bool {
	next := make(map[int64]bool, len(m)+1)
	for k, v := range m {
		if k != id {
			next[k] = v
		}
	}
	if on {
		next[id] = true
	}
	return next
}

func without[T core.Record](records []T, id int64) []T {
	next := make([]T, 0, len(records))
	for _, r := range records {
		if r.RecordID() != id {
			next = append(next, r)
		}
	}
	return next
}
