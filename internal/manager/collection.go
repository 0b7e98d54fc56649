package manager

import (
	"fmt"
	"slices"

	"github.com/starford/quire/internal/observable"
	"github.com/starford/quire/internal/provider"
)

// BatchSize is the most entries one LoadMore call exposes.
const BatchSize = 30

// State is the exposure state of a collection.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StatePartiallyExposed
	StateFullyExposed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePartiallyExposed:
		return "partially-exposed"
	case StateFullyExposed:
		return "fully-exposed"
	}
	return "empty"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateEmpty; st <= StateFullyExposed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("manager: unknown state %q", b)
}

// collection is a sorted pending queue in front of an exposed store. The
// store always holds exactly the entries that sort before queue[0]. Only the
// manager loop touches the queue.
//
// Entries normally reach the store only through loadMore. The exception is
// an arrival after exposure that sorts before queue[0]: queueing it would
// break the prefix invariant, since the next batch would land after store
// entries that sort later. It is inserted into the store at its sorted
// position instead.
type collection struct {
	queue []provider.Entry
	store *observable.List[provider.Entry]
	state State
}

func newCollection() *collection {
	return &collection{store: observable.NewList[provider.Entry]()}
}

func (c *collection) exposed() bool {
	return c.state == StatePartiallyExposed || c.state == StateFullyExposed
}

// add places e in sort order. Once exposure started, entries that sort
// before the queue head go straight into the store.
func (c *collection) add(e provider.Entry) {
	if c.exposed() && (len(c.queue) == 0 || provider.Compare(e, c.queue[0]) < 0) {
		items := c.store.Items()
		pos, _ := slices.BinarySearchFunc(items, e, provider.Compare)
		c.store.Insert(pos, e)
		return
	}
	pos, _ := slices.BinarySearchFunc(c.queue, e, provider.Compare)
	c.queue = slices.Insert(c.queue, pos, e)
}

// remove drops the entry holding the same provider and note.
func (c *collection) remove(e provider.Entry) bool {
	same := func(o provider.Entry) bool { return o.Provider == e.Provider && o.Note == e.Note }
	if i := c.store.IndexFunc(same); i >= 0 {
		c.store.RemoveAt(i)
		return true
	}
	if i := slices.IndexFunc(c.queue, same); i >= 0 {
		c.queue = slices.Delete(c.queue, i, i+1)
		c.settle()
		return true
	}
	return false
}

func (c *collection) contains(e provider.Entry) bool {
	same := func(o provider.Entry) bool { return o.Provider == e.Provider && o.Note == e.Note }
	return c.store.IndexFunc(same) >= 0 || slices.IndexFunc(c.queue, same) >= 0
}

// loadMore moves up to BatchSize entries from the queue into the store.
func (c *collection) loadMore() int {
	n := min(BatchSize, len(c.queue))
	if n > 0 {
		batch := slices.Clone(c.queue[:n])
		c.queue = slices.Delete(c.queue, 0, n)
		c.store.Append(batch...)
	}
	if c.state == StateEmpty && n == 0 {
		return 0
	}
	c.state = StatePartiallyExposed
	c.settle()
	return n
}

func (c *collection) settle() {
	if c.exposed() {
		if len(c.queue) == 0 {
			c.state = StateFullyExposed
		} else {
			c.state = StatePartiallyExposed
		}
	}
}
