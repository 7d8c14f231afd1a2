// Package device implements a single-slot character device: one fixed-size
// buffer shared by every session, guarded by one lock, with a readiness flag
// that blocking waiters and pollers observe and a control command that
// clears it.
//
// A write replaces the whole buffer and marks it readable. A read drains
// bytes from the session's own offset and clears the readable flag, even
// when bytes remain past the new offset.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultName = "mychardev"

// Device owns the shared buffer and its synchronization state.
type Device struct {
	name string

	mu      *mutex
	store   Store
	buf     []byte // store.Bytes(), nil after Close
	staging []byte
	length  int

	// written only while mu is held; read lock-free by Poll and Wait
	available atomic.Bool
	closed    atomic.Bool

	waiters   *waitSet
	copier    Copier
	collector Collector
	pub       Publisher
	logger    *slog.Logger

	sessions  atomic.Int64
	sessionID atomic.Uint64
	closeOnce sync.Once
}

// New creates a device. Without WithStore the buffer is heap memory of
// WithCapacity bytes (DefaultCapacity if unset).
func New(opts ...Option) (*Device, error) {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		capacity := o.capacity
		if capacity == 0 {
			capacity = DefaultCapacity
		}
		s, err := NewHeapStore(capacity)
		if err != nil {
			return nil, err
		}
		store = s
	}

	buf := store.Bytes()
	if len(buf) == 0 {
		return nil, fmt.Errorf("device %s: empty store: %w", o.name, ErrInvalidArgument)
	}
	if o.capacity != 0 && o.capacity != len(buf) {
		return nil, fmt.Errorf("device %s: capacity %d does not match %d-byte store: %w",
			o.name, o.capacity, len(buf), ErrInvalidArgument)
	}

	d := &Device{
		name:      o.name,
		mu:        newMutex(),
		store:     store,
		buf:       buf,
		staging:   make([]byte, len(buf)),
		waiters:   newWaitSet(),
		copier:    o.copier,
		collector: o.collector,
		pub:       o.publisher,
		logger:    o.logger,
	}
	if d.copier == nil {
		d.copier = MemCopier{}
	}
	if d.collector == nil {
		d.collector = nopCollector{}
	}
	if d.pub == nil {
		d.pub = nopPublisher{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("device", d.name)

	// A store that already holds bytes (a reused shm segment) starts empty.
	clear(d.buf)

	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Capacity returns the buffer size in bytes.
func (d *Device) Capacity() int { return len(d.staging) }

// Sessions returns the number of open sessions.
func (d *Device) Sessions() int64 { return d.sessions.Load() }

// Len returns the number of valid bytes in the buffer (for diagnostics).
func (d *Device) Len() int {
	d.mu.lockUninterruptible()
	defer d.mu.Unlock()
	return d.length
}

// Readable reports the availability flag without blocking.
func (d *Device) Readable() bool { return d.available.Load() }

// Open starts a new session with its offset at zero.
func (d *Device) Open() *Session {
	s := &Session{dev: d, id: d.sessionID.Add(1)}
	d.sessions.Add(1)
	d.collector.ObserveSessions(1)
	d.logger.Debug("open", "session", s.id)
	return s
}

func (d *Device) release(s *Session) {
	d.sessions.Add(-1)
	d.collector.ObserveSessions(-1)
	d.logger.Debug("release", "session", s.id, "offset", s.off)
}

func (d *Device) write(ctx context.Context, p []byte) (n int, err error) {
	defer func() { d.collector.ObserveWrite(n, err) }()

	if len(p) > len(d.staging) {
		return 0, fmt.Errorf("write of %d bytes exceeds %d-byte buffer: %w",
			len(p), len(d.staging), ErrInvalidArgument)
	}

	if err := d.mu.Lock(ctx); err != nil {
		return 0, err
	}
	if d.closed.Load() {
		d.mu.Unlock()
		return 0, ErrClosed
	}

	// Stage first so a failed transfer leaves the buffer untouched.
	staged := d.staging[:len(p)]
	if err := d.copier.CopyIn(staged, p); err != nil {
		d.mu.Unlock()
		return 0, fault(err)
	}
	n = copy(d.buf, staged)
	clear(d.buf[n:])
	d.length = n
	// an empty write commits an empty buffer, which is never readable
	d.available.Store(n > 0)
	d.mu.Unlock()

	if woken := d.waiters.wakeAll(); woken > 0 {
		d.collector.ObserveWaiters(-woken)
	}
	d.pub.Publish(EventWrite, WriteEvent{Device: d.name, Length: n})
	return n, nil
}

func (d *Device) read(ctx context.Context, off *int64, p []byte) (n int, err error) {
	defer func() { d.collector.ObserveRead(n, err) }()

	if err := d.mu.Lock(ctx); err != nil {
		return 0, err
	}
	defer d.mu.Unlock()

	if d.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if *off >= int64(d.length) {
		return 0, io.EOF
	}

	start := int(*off)
	n = min(len(p), d.length-start)
	if err := d.copier.CopyOut(p[:n], d.buf[start:start+n]); err != nil {
		return 0, fault(err)
	}
	*off += int64(n)
	d.available.Store(false)
	return n, nil
}

func (d *Device) wait(ctx context.Context) error {
	for {
		// Register before checking the flag so a write landing between the
		// check and the select still wakes us.
		id, wake := d.waiters.register()
		if id != 0 {
			d.collector.ObserveWaiters(1)
		}

		if d.closed.Load() {
			d.dropWaiter(id)
			return ErrClosed
		}
		if d.available.Load() {
			d.dropWaiter(id)
			return nil
		}

		select {
		case <-wake:
		case <-ctx.Done():
			d.dropWaiter(id)
			return interrupted(ctx.Err())
		}
	}
}

func (d *Device) dropWaiter(id uint64) {
	if d.waiters.unregister(id) {
		d.collector.ObserveWaiters(-1)
	}
}

func (d *Device) poll(pt *PollTable) PollMask {
	if pt != nil {
		pt.add(d)
	}

	var mask PollMask
	if d.available.Load() {
		mask |= PollIn | PollRdNorm
	}
	if d.closed.Load() {
		mask |= PollHup
	}
	d.collector.ObservePoll(mask&PollIn != 0)
	return mask
}

// Reset clears the buffer, its length and the availability flag. It waits
// for the lock without interruption and is idempotent.
func (d *Device) Reset() error {
	d.mu.lockUninterruptible()
	if d.closed.Load() {
		d.mu.Unlock()
		return ErrClosed
	}
	clear(d.buf)
	d.length = 0
	d.available.Store(false)
	d.mu.Unlock()

	d.logger.Info("buffer reset")
	d.collector.ObserveReset()
	d.pub.Publish(EventReset, ResetEvent{Device: d.name})
	return nil
}

// Ioctl runs a control command.
func (d *Device) Ioctl(cmd Command) error {
	switch cmd {
	case CmdReset:
		return d.Reset()
	default:
		return fmt.Errorf("ioctl %s: %w", cmd, ErrUnsupported)
	}
}

// Close tears the device down: pending and future operations fail with
// ErrClosed, waiters are woken and the store is released.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.lockUninterruptible()
		d.closed.Store(true)
		d.available.Store(false)
		d.length = 0
		err = d.store.Close()
		d.buf = nil
		d.mu.Unlock()

		if woken := d.waiters.close(); woken > 0 {
			d.collector.ObserveWaiters(-woken)
		}
		d.logger.Info("device removed")
	})
	return err
}

func fault(err error) error {
	if errors.Is(err, ErrFault) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFault, err)
}
