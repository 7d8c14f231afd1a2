package device

import "fmt"

// Copier moves bytes between caller memory and the device buffer. It is
// the only collaborator allowed to fail in the middle of a read or write;
// the device treats any error as a fault and commits nothing.
type Copier interface {
	// CopyIn copies caller bytes src into device memory dst.
	CopyIn(dst, src []byte) error
	// CopyOut copies device bytes src into caller memory dst.
	CopyOut(dst, src []byte) error
}

// MemCopier is the in-process Copier. Short copies are reported as faults.
type MemCopier struct{}

func (MemCopier) CopyIn(dst, src []byte) error {
	if n := copy(dst, src); n != len(src) {
		return fmt.Errorf("copy in: %d of %d bytes: %w", n, len(src), ErrFault)
	}
	return nil
}

func (MemCopier) CopyOut(dst, src []byte) error {
	if n := copy(dst, src); n != len(src) {
		return fmt.Errorf("copy out: %d of %d bytes: %w", n, len(src), ErrFault)
	}
	return nil
}
