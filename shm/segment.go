// Package shm provides a shared memory segment used as device buffer memory.
//
// The segment is a plain file mmap'd MAP_SHARED, by default under /dev/shm so
// the pages are RAM-backed. Other processes may map the same file to inspect
// the buffer; the device still owns all writes.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultDir is the RAM-backed directory segments are created in.
const DefaultDir = "/dev/shm"

// Segment is an mmap'd file that satisfies device.Store.
type Segment struct {
	path string
	file *os.File
	data []byte
}

// NewSegment creates (or truncates) dir/name and maps capacity bytes of it.
func NewSegment(dir, name string, capacity int) (*Segment, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("shm: capacity must be positive, got %d", capacity)
	}
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("shm: invalid segment name %q", name)
	}
	if dir == "" {
		dir = DefaultDir
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Preallocate
	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, capacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &Segment{path: path, file: f, data: data}, nil
}

// Path returns the backing file path.
func (s *Segment) Path() string { return s.path }

// Bytes returns the mapped memory. It is invalid after Close.
func (s *Segment) Bytes() []byte { return s.data }

// Sync flushes the mapping to the backing file.
func (s *Segment) Sync() error {
	if s.data == nil {
		return nil
	}
	return unix.Msync(s.data, unix.MS_SYNC)
}

// Close unmaps the memory and closes the file. The file stays on disk; see
// Unlink.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Unlink removes the backing file. A missing file is not an error.
func (s *Segment) Unlink() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
