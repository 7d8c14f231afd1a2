package device

import (
	"fmt"
	"io"
)

// DefaultCapacity is the size of the device buffer unless configured otherwise.
const DefaultCapacity = 256

// Store is the fixed-size memory behind a device. len(Bytes()) is the
// device capacity and must not change for the life of the store.
type Store interface {
	Bytes() []byte
	io.Closer
}

type heapStore struct {
	buf []byte
}

// NewHeapStore returns a Store backed by ordinary Go memory.
func NewHeapStore(capacity int) (Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("heap store: capacity %d: %w", capacity, ErrInvalidArgument)
	}
	return &heapStore{buf: make([]byte, capacity)}, nil
}

func (h *heapStore) Bytes() []byte { return h.buf }

func (h *heapStore) Close() error { return nil }
