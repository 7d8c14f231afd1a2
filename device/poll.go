package device

import "strings"

// PollMask is the readiness bitmask returned by Poll. Bit values follow
// poll(2).
type PollMask uint32

const (
	PollIn     PollMask = 0x0001
	PollHup    PollMask = 0x0010
	PollNval   PollMask = 0x0020
	PollRdNorm PollMask = 0x0040
)

// Readable reports whether PollIn is set.
func (m PollMask) Readable() bool { return m&PollIn != 0 }

func (m PollMask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	for _, b := range []struct {
		bit  PollMask
		name string
	}{
		{PollIn, "POLLIN"},
		{PollRdNorm, "POLLRDNORM"},
		{PollHup, "POLLHUP"},
		{PollNval, "POLLNVAL"},
	} {
		if m&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// PollTable carries a wait-set registration across repeated Poll calls,
// like the table an event loop hands to a driver's poll method. The zero
// value is ready to use. Call Release when done polling.
type PollTable struct {
	dev  *Device
	id   uint64
	wake <-chan struct{}
}

// Ready returns a channel closed on the next write after the last Poll.
// It is nil before the first Poll.
func (pt *PollTable) Ready() <-chan struct{} { return pt.wake }

func (pt *PollTable) add(d *Device) {
	if pt.wake != nil && pt.dev == d {
		select {
		case <-pt.wake:
			// fired; queue again for the next write
		default:
			return
		}
	}
	pt.Release()
	pt.dev = d
	pt.id, pt.wake = d.waiters.register()
	if pt.id != 0 {
		d.collector.ObserveWaiters(1)
	}
}

// Release removes the table from the wait set.
func (pt *PollTable) Release() {
	if pt.dev != nil {
		pt.dev.dropWaiter(pt.id)
	}
	pt.dev, pt.id, pt.wake = nil, 0, nil
}
