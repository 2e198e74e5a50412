package presence

import (
	"sort"
	"sync"
)

// Table maps user ids to their last known online state. Entries are
// added on first sight and never removed.
type Table struct {
	mu      sync.RWMutex
	entries map[int64]bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[int64]bool),
		subs:    make(map[int]func(Event)),
	}
}

// Seed adds ids as offline. Ids already present keep their state.
func (t *Table) Seed(ids ...int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if _, ok := t.entries[id]; !ok {
			t.entries[id] = false
		}
	}
}

// Set records the state of id. Subscribers are called when the entry is
// new or its state changed.
func (t *Table) Set(id int64, online bool) {
	t.mu.Lock()
	prev, known := t.entries[id]
	t.entries[id] = online
	t.mu.Unlock()

	if known && prev == online {
		return
	}
	t.notify(Event{UserID: id, Online: online})
}

// Get returns the state of id and whether id has been seen.
func (t *Table) Get(id int64) (online, known bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	online, known = t.entries[id]
	return online, known
}

// Snapshot returns all entries ordered by user id.
func (t *Table) Snapshot() []Event {
	t.mu.RLock()
	out := make([]Event, 0, len(t.entries))
	for id, online := range t.entries {
		out = append(out, Event{UserID: id, Online: online})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Subscribe registers fn for entry changes. fn runs synchronously on the
// goroutine that called Set. The returned function removes it.
func (t *Table) Subscribe(fn func(Event)) (cancel func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Table) notify(ev Event) {
	t.subMu.Lock()
	fns := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
