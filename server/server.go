// Package server exposes a device over WebSocket. Every connection holds one
// session; requests on a connection are served in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cmartinez0925/mychardev/device"
)

// Server is an http.Handler serving one device.
type Server struct {
	dev        *device.Device
	logger     *slog.Logger
	acceptOpts *websocket.AcceptOptions

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAcceptOptions passes options to websocket.Accept, e.g. allowed origins.
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(s *Server) { s.acceptOpts = o }
}

func New(dev *device.Device, opts ...Option) *Server {
	s := &Server{dev: dev, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("device", dev.Name())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Close disconnects every client and waits for their handlers to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conns.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "device removed", http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	c, err := websocket.Accept(w, r, s.acceptOpts)
	if err != nil {
		s.logger.Warn("accept", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer c.CloseNow()
	// a full-buffer write arrives base64 encoded
	c.SetReadLimit(int64(2*s.dev.Capacity() + 1024))

	if err := s.serve(c); err != nil {
		s.logger.Debug("connection ended", "remote", r.RemoteAddr, "error", err)
	}
}

func (s *Server) serve(c *websocket.Conn) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	sess := s.dev.Open()
	defer func() { sess.Close() }()

	// Requests are read on their own goroutine so that a client going away
	// cancels a pending wait.
	reqs := make(chan Request)
	readErr := make(chan error, 1)
	go func() {
		defer cancel()
		for {
			var req Request
			if err := wsjson.Read(ctx, c, &req); err != nil {
				readErr <- err
				return
			}
			select {
			case reqs <- req:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
	}()

	for {
		var req Request
		select {
		case req = <-reqs:
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				c.Close(websocket.StatusGoingAway, "server closing")
				return nil
			}
			err := <-readErr
			if st := websocket.CloseStatus(err); st == websocket.StatusNormalClosure || st == websocket.StatusGoingAway {
				return nil
			}
			return err
		}

		resp := s.handle(ctx, &sess, req)
		if err := wsjson.Write(ctx, c, resp); err != nil {
			return err
		}
		if resp.Error == device.ErrnoShutdown {
			c.Close(websocket.StatusGoingAway, "device removed")
			return nil
		}
	}
}

func (s *Server) handle(ctx context.Context, sess **device.Session, req Request) Response {
	resp := Response{ID: req.ID, Session: (*sess).ID()}
	var err error

	switch req.Op {
	case OpRead:
		if req.Max < 0 {
			err = fmt.Errorf("read size %d: %w", req.Max, device.ErrInvalidArgument)
			break
		}
		buf := make([]byte, min(req.Max, s.dev.Capacity()))
		resp.N, err = (*sess).ReadContext(ctx, buf)
		if errors.Is(err, io.EOF) {
			resp.EOF, err = true, nil
		}
		resp.Data = buf[:resp.N]
	case OpWrite:
		resp.N, err = (*sess).WriteContext(ctx, req.Data)
	case OpPoll:
		resp.Mask = uint32((*sess).Poll(nil))
	case OpWait:
		wctx := ctx
		if req.TimeoutMs > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
			defer cancel()
		}
		err = (*sess).Wait(wctx)
	case OpIoctl:
		err = (*sess).Ioctl(device.Command(req.Cmd))
	case OpReset:
		err = (*sess).Ioctl(device.CmdReset)
	case OpReopen:
		(*sess).Close()
		*sess = s.dev.Open()
		resp.Session = (*sess).ID()
	default:
		err = fmt.Errorf("op %q: %w", req.Op, device.ErrUnsupported)
	}

	if err != nil {
		resp.Error = device.Errno(err)
		resp.Message = err.Error()
		resp.Retryable = device.IsRetryable(err)
		if !resp.Retryable {
			s.logger.Debug("request failed", "op", req.Op, "session", resp.Session, "error", err)
		}
	}
	return resp
}
