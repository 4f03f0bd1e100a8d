package payment

import "sync"

// orderLocks hands out one mutex per order id so concurrent deliveries for
// the same order serialize while unrelated orders proceed in parallel.
// Entries are reference counted and dropped when the last holder releases.
type orderLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{entries: make(map[int64]*lockEntry)}
}

// Lock blocks until the per-order mutex is held and returns the release
// function.
func (l *orderLocks) Lock(orderID int64) func() {
	l.mu.Lock()
	e, ok := l.entries[orderID]
	if !ok {
		e = &lockEntry{}
		l.entries[orderID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, orderID)
		}
		l.mu.Unlock()
	}
}
