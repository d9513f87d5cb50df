// Package optimistic holds entities that are shown before the server has
// confirmed them. An entry inserted locally carries a local id until it is
// confirmed in place or reverted.
//
// Types here are not safe for concurrent use; the owning engine locks.
package optimistic

import (
	"github.com/google/uuid"
)

// Handle identifies one pending insertion.
type Handle struct {
	LocalID string
}

type Entry[T any] struct {
	LocalID string
	Item    T
}

func (e Entry[T]) Pending() bool {
	return e.LocalID != ""
}

type List[T any] struct {
	entries []Entry[T]
}

func NewList[T any](items []T) *List[T] {
	l := &List[T]{}
	l.Reset(items)
	return l
}

// Reset replaces the contents with server-confirmed items. Pending entries
// are dropped; a later Confirm or Revert on their handle is a no-op.
func (l *List[T]) Reset(items []T) {
	l.entries = make([]Entry[T], 0, len(items))
	for _, item := range items {
		l.entries = append(l.entries, Entry[T]{Item: item})
	}
}

// Insert places a pending item at pos. Out of range positions append.
func (l *List[T]) Insert(pos int, item T) Handle {
	h := Handle{LocalID: uuid.NewString()}
	entry := Entry[T]{LocalID: h.LocalID, Item: item}
	if pos < 0 || pos >= len(l.entries) {
		l.entries = append(l.entries, entry)
		return h
	}
	l.entries = append(l.entries, Entry[T]{})
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = entry
	return h
}

// Push appends an already confirmed item.
func (l *List[T]) Push(item T) {
	l.entries = append(l.entries, Entry[T]{Item: item})
}

func (l *List[T]) Prepend(item T) Handle {
	return l.Insert(0, item)
}

func (l *List[T]) Append(item T) Handle {
	return l.Insert(-1, item)
}

// Confirm swaps the pending entry for the server's version at the same
// position.
func (l *List[T]) Confirm(h Handle, item T) bool {
	i := l.indexOf(h)
	if i < 0 {
		return false
	}
	l.entries[i] = Entry[T]{Item: item}
	return true
}

// Revert removes the pending entry, leaving the list as it was before the
// insertion.
func (l *List[T]) Revert(h Handle) bool {
	i := l.indexOf(h)
	if i < 0 {
		return false
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return true
}

func (l *List[T]) Has(h Handle) bool {
	return l.indexOf(h) >= 0
}

func (l *List[T]) Len() int {
	return len(l.entries)
}

func (l *List[T]) Entries() []Entry[T] {
	return append([]Entry[T](nil), l.entries...)
}

func (l *List[T]) Items() []T {
	items := make([]T, len(l.entries))
	for i, e := range l.entries {
		items[i] = e.Item
	}
	return items
}

// Find returns the first confirmed item matching.
func (l *List[T]) Find(match func(T) bool) (T, bool) {
	for _, e := range l.entries {
		if !e.Pending() && match(e.Item) {
			return e.Item, true
		}
	}
	var zero T
	return zero, false
}

// Update rewrites every confirmed item matching and reports how many changed.
func (l *List[T]) Update(match func(T) bool, fn func(T) T) int {
	n := 0
	for i, e := range l.entries {
		if !e.Pending() && match(e.Item) {
			l.entries[i].Item = fn(e.Item)
			n++
		}
	}
	return n
}

// Remove deletes confirmed items matching and reports how many went.
func (l *List[T]) Remove(match func(T) bool) int {
	kept := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if !e.Pending() && match(e.Item) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return removed
}

func (l *List[T]) indexOf(h Handle) int {
	if h.LocalID == "" {
		return -1
	}
	for i, e := range l.entries {
		if e.LocalID == h.LocalID {
			return i
		}
	}
	return -1
}
