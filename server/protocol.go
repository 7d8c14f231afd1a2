package server

// Operations understood by the server.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpPoll   = "poll"
	OpWait   = "wait"
	OpIoctl  = "ioctl"
	OpReset  = "reset"
	OpReopen = "reopen"
)

// Request is one call on the connection's session.
type Request struct {
	ID uint64 `json:"id"`
	Op string `json:"op"`
	// Max is the read size; values above the device capacity are clamped.
	Max  int    `json:"max,omitempty"`
	Data []byte `json:"data,omitempty"`
	Cmd  uint32 `json:"cmd,omitempty"`
	// TimeoutMs bounds a wait; 0 waits until the connection goes away.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// Response answers the Request with the same ID. Error carries an errno
// code from device.Errno and Message the full error text.
type Response struct {
	ID        uint64 `json:"id"`
	N         int    `json:"n,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Mask      uint32 `json:"mask,omitempty"`
	EOF       bool   `json:"eof,omitempty"`
	Session   uint64 `json:"session,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
