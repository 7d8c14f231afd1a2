package device

import "sync"

// waitSet holds the goroutines waiting for the availability flag. A wake
// closes every registered channel and empties the set; each waiter then
// re-checks the flag itself.
type waitSet struct {
	mu     sync.Mutex
	ws     map[uint64]chan struct{}
	nextID uint64
	closed bool
}

func newWaitSet() *waitSet {
	return &waitSet{ws: make(map[uint64]chan struct{})}
}

// register adds a waiter. On a closed set the id is 0 and the returned
// channel is already closed so the caller falls through to its own closed
// check.
func (w *waitSet) register() (id uint64, ch <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	notify := make(chan struct{})
	if w.closed {
		close(notify)
		return 0, notify
	}

	w.nextID++
	id = w.nextID
	w.ws[id] = notify
	return id, notify
}

// unregister removes a waiter and reports whether it was still registered.
func (w *waitSet) unregister(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.ws[id]; !ok {
		return false
	}
	delete(w.ws, id)
	return true
}

// wakeAll wakes every waiter and returns how many were woken.
func (w *waitSet) wakeAll() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.ws)
	for id, notify := range w.ws {
		close(notify)
		delete(w.ws, id)
	}
	return n
}

func (w *waitSet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.ws)
}

// close wakes every waiter for good; later registrations return an
// already-closed channel. It returns how many waiters were woken.
func (w *waitSet) close() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0
	}
	w.closed = true
	n := len(w.ws)
	for id, notify := range w.ws {
		close(notify)
		delete(w.ws, id)
	}
	return n
}
