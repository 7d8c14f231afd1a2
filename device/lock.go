package device

import "context"

// mutex is a lock whose acquisition can be abandoned through a context,
// the counterpart of an interruptible kernel mutex.
type mutex struct {
	ch chan struct{}
}

func newMutex() *mutex {
	return &mutex{ch: make(chan struct{}, 1)}
}

// Lock acquires the mutex or returns ErrInterrupted once ctx is done.
// An uncontended lock is always acquired, even with ctx already done.
func (m *mutex) Lock(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return interrupted(ctx.Err())
	}
}

func (m *mutex) lockUninterruptible() {
	m.ch <- struct{}{}
}

func (m *mutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("device: unlock of unlocked mutex")
	}
}
