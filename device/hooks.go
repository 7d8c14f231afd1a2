package device

// Collector receives per-operation measurements. Calls are made outside the
// device lock.
type Collector interface {
	ObserveWrite(bytes int, err error)
	ObserveRead(bytes int, err error)
	ObservePoll(readable bool)
	ObserveReset()
	ObserveSessions(delta int)
	ObserveWaiters(delta int)
}

// Publisher is the minimal interface the device needs to announce state
// changes to observers outside the process.
type Publisher interface {
	Publish(msgType string, payload any)
}

// Event types handed to the Publisher.
const (
	EventWrite = "write"
	EventReset = "reset"
)

// WriteEvent is published after every committed write.
type WriteEvent struct {
	Device string `json:"device"`
	Length int    `json:"length"`
}

// ResetEvent is published after every reset.
type ResetEvent struct {
	Device string `json:"device"`
}

type nopCollector struct{}

func (nopCollector) ObserveWrite(int, error) {}
func (nopCollector) ObserveRead(int, error)  {}
func (nopCollector) ObservePoll(bool)        {}
func (nopCollector) ObserveReset()           {}
func (nopCollector) ObserveSessions(int)     {}
func (nopCollector) ObserveWaiters(int)      {}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}
