package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned for writes larger than the device capacity.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInterrupted is returned when lock acquisition or a wait is cancelled.
	// The call can be retried; no state was changed.
	ErrInterrupted = errors.New("interrupted")
	// ErrFault is returned when moving bytes to or from caller memory fails.
	ErrFault = errors.New("bad address")
	// ErrUnsupported is returned for unknown control commands.
	ErrUnsupported = errors.New("inappropriate ioctl for device")
	// ErrSessionClosed is returned for operations on a released session.
	ErrSessionClosed = errors.New("session closed")
	// ErrClosed is returned once the device has been torn down.
	ErrClosed = errors.New("device closed")
)

// Wire codes for the sentinel errors.
const (
	ErrnoInvalid     = "EINVAL"
	ErrnoInterrupted = "EINTR"
	ErrnoFault       = "EFAULT"
	ErrnoNotTTY      = "ENOTTY"
	ErrnoBadFD       = "EBADF"
	ErrnoShutdown    = "ESHUTDOWN"
	ErrnoIO          = "EIO"
)

var errnos = []struct {
	code string
	err  error
}{
	{ErrnoInvalid, ErrInvalidArgument},
	{ErrnoInterrupted, ErrInterrupted},
	{ErrnoFault, ErrFault},
	{ErrnoNotTTY, ErrUnsupported},
	{ErrnoBadFD, ErrSessionClosed},
	{ErrnoShutdown, ErrClosed},
}

// IsRetryable reports whether err came from a cancelled acquisition.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// Errno maps err to its wire code. Unknown errors map to EIO, nil to "".
func Errno(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ErrnoIO
}

// FromErrno is the inverse of Errno. The returned error wraps the matching
// sentinel so errors.Is works on the far side of a transport.
func FromErrno(code, msg string) error {
	if code == "" {
		return nil
	}
	for _, e := range errnos {
		if e.code == code {
			msg = strings.TrimPrefix(strings.TrimPrefix(msg, e.err.Error()), ": ")
			if msg == "" {
				return e.err
			}
			return fmt.Errorf("%w: %s", e.err, msg)
		}
	}
	if msg == "" {
		msg = code
	}
	return fmt.Errorf("device: %s", msg)
}

func interrupted(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}
