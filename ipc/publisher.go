// Package ipc streams device events to a local Unix socket as JSON lines.
package ipc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmartinez0925/mychardev/device"
)

const (
	defaultQueue = 64
	redialDelay  = 500 * time.Millisecond
)

var _ device.Publisher = (*Publisher)(nil)

// Message is the envelope sent over the socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher queues events from the device and writes them to the socket
// listener at path. Publish never blocks: when the queue is full the event
// is dropped and counted.
type Publisher struct {
	path   string
	logger *slog.Logger
	queue  chan []byte

	mu   sync.Mutex
	conn net.Conn

	dropped atomic.Uint64
}

func NewPublisher(path string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		path:   path,
		logger: logger.With("socket", path),
		queue:  make(chan []byte, defaultQueue),
	}
}

// Publish encodes a typed message and queues it for Run.
func (p *Publisher) Publish(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("ipc: encode event", "type", msgType, "error", err)
		return
	}
	msg, _ := json.Marshal(Message{Type: msgType, Payload: raw})
	msg = append(msg, '\n')

	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Run sends queued events until ctx is done. The socket is dialed lazily and
// redialed after a failed write; an event that cannot be delivered after
// three attempts is dropped.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			p.send(ctx, msg)
		}
	}
}

func (p *Publisher) send(ctx context.Context, msg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempts := 0; attempts < 3; attempts++ {
		if p.conn == nil {
			if attempts > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(redialDelay):
				}
			}
			var d net.Dialer
			conn, err := d.DialContext(ctx, "unix", p.path)
			if err != nil {
				continue
			}
			p.conn = conn
			p.logger.Info("ipc: connected")
		}
		if _, err := p.conn.Write(msg); err != nil {
			p.conn.Close()
			p.conn = nil
			continue
		}
		return
	}
	p.dropped.Add(1)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
