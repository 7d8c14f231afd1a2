package device

import "context"

// Session is one open handle on a Device with its own read offset. Writes
// ignore the offset and replace the whole buffer. A Session is not safe for
// concurrent use; open one per goroutine.
type Session struct {
	dev    *Device
	id     uint64
	off    int64
	closed bool
}

// ID returns the session number, unique per device.
func (s *Session) ID() uint64 { return s.id }

// Offset returns the read offset.
func (s *Session) Offset() int64 { return s.off }

// Read implements io.Reader. It never blocks waiting for data: with the
// offset at or past the buffer length it returns io.EOF.
func (s *Session) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// ReadContext reads from the session offset. ctx only bounds the wait for
// the device lock.
func (s *Session) ReadContext(ctx context.Context, p []byte) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	return s.dev.read(ctx, &s.off, p)
}

// ReadWait blocks until the device is readable, then reads.
func (s *Session) ReadWait(ctx context.Context, p []byte) (int, error) {
	if err := s.Wait(ctx); err != nil {
		return 0, err
	}
	return s.ReadContext(ctx, p)
}

// Write implements io.Writer.
func (s *Session) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext replaces the device buffer with p and wakes all waiters.
func (s *Session) WriteContext(ctx context.Context, p []byte) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	return s.dev.write(ctx, p)
}

// Wait blocks until the device is readable or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.dev.wait(ctx)
}

// Poll reports readiness without blocking. With a non-nil pt the session is
// also queued on the device wait set; pt.Ready() closes on the next write.
// A closed session reports PollNval.
func (s *Session) Poll(pt *PollTable) PollMask {
	if s.closed {
		return PollNval
	}
	return s.dev.poll(pt)
}

// Ioctl runs a control command on the device.
func (s *Session) Ioctl(cmd Command) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.dev.Ioctl(cmd)
}

// Close releases the session. Closing twice returns ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.dev.release(s)
	return nil
}
