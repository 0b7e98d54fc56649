// Package observable provides an ordered list that reports every mutation to
// its subscribers, so a view can re-render only the affected range.
package observable

import (
	"slices"
	"sync"
)

// Change describes one mutation: at Position, Removed items were dropped and
// Added items were inserted.
type Change struct {
	Position int
	Removed  int
	Added    int
}

// List is an ordered collection safe for concurrent readers. Observers are
// invoked synchronously after the mutation, outside the lock.
type List[T any] struct {
	mu        sync.RWMutex
	items     []T
	observers map[int]func(Change)
	nextID    int
}

// NewList returns an empty list.
func NewList[T any]() *List[T] {
	return &List[T]{observers: make(map[int]func(Change))}
}

// Len returns the number of items.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// At returns the item at i.
func (l *List[T]) At(i int) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var zero T
	if i < 0 || i >= len(l.items) {
		return zero, false
	}
	return l.items[i], true
}

// Items returns a copy of the current contents.
func (l *List[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// IndexFunc returns the position of the first item satisfying fn, or -1.
func (l *List[T]) IndexFunc(fn func(T) bool) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.IndexFunc(l.items, fn)
}

// Append adds items at the end.
func (l *List[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	l.mu.Lock()
	pos := len(l.items)
	l.items = append(l.items, items...)
	l.mu.Unlock()
	l.notify(Change{Position: pos, Added: len(items)})
}

// Insert places item at pos, clamped to the list bounds.
func (l *List[T]) Insert(pos int, item T) {
	l.mu.Lock()
	pos = max(0, min(pos, len(l.items)))
	l.items = slices.Insert(l.items, pos, item)
	l.mu.Unlock()
	l.notify(Change{Position: pos, Added: 1})
}

// RemoveAt drops the item at pos.
func (l *List[T]) RemoveAt(pos int) (T, bool) {
	l.mu.Lock()
	var zero T
	if pos < 0 || pos >= len(l.items) {
		l.mu.Unlock()
		return zero, false
	}
	item := l.items[pos]
	l.items = slices.Delete(l.items, pos, pos+1)
	l.mu.Unlock()
	l.notify(Change{Position: pos, Removed: 1})
	return item, true
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (l *List[T]) Subscribe(fn func(Change)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

func (l *List[T]) notify(c Change) {
	l.mu.RLock()
	fns := make([]func(Change), 0, len(l.observers))
	for _, fn := range l.observers {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}
