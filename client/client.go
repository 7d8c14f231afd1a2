// Package client talks to a device exposed by package server.
package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cmartinez0925/mychardev/device"
	"github.com/cmartinez0925/mychardev/server"
)

// readChunk asks for as much as the server will return in one read; the
// server clamps it to the device capacity.
const readChunk = 1 << 20

// Client is one remote session. Calls are serialized; a context cancelled
// mid-call closes the underlying connection.
type Client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	nextID uint64
}

// Dial opens a session on the device at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c.SetReadLimit(4 << 20)
	return &Client{conn: c}, nil
}

func (c *Client) do(ctx context.Context, req server.Request) (server.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req.ID = c.nextID
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return server.Response{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	var resp server.Response
	if err := wsjson.Read(ctx, c.conn, &resp); err != nil {
		return server.Response{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	if resp.ID != req.ID {
		return server.Response{}, fmt.Errorf("%s: response id %d, want %d", req.Op, resp.ID, req.ID)
	}
	return resp, device.FromErrno(resp.Error, resp.Message)
}

// Read reads up to max bytes from the session offset. It returns io.EOF
// once the offset reaches the buffer length.
func (c *Client) Read(ctx context.Context, max int) ([]byte, error) {
	resp, err := c.do(ctx, server.Request{Op: server.OpRead, Max: max})
	if err != nil {
		return nil, err
	}
	if resp.EOF {
		return nil, io.EOF
	}
	return resp.Data, nil
}

// ReadAll reads from the session offset until EOF.
func (c *Client) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	for {
		b, err := c.Read(ctx, readChunk)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b...)
	}
}

// Write replaces the device buffer with p.
func (c *Client) Write(ctx context.Context, p []byte) (int, error) {
	resp, err := c.do(ctx, server.Request{Op: server.OpWrite, Data: p})
	return resp.N, err
}

// Poll reports the readiness mask without blocking the device.
func (c *Client) Poll(ctx context.Context) (device.PollMask, error) {
	resp, err := c.do(ctx, server.Request{Op: server.OpPoll})
	return device.PollMask(resp.Mask), err
}

// Wait blocks until the device is readable. A positive timeout is enforced
// by the server and reported as device.ErrInterrupted.
func (c *Client) Wait(ctx context.Context, timeout time.Duration) error {
	_, err := c.do(ctx, server.Request{Op: server.OpWait, TimeoutMs: timeout.Milliseconds()})
	return err
}

// Ioctl sends a control command.
func (c *Client) Ioctl(ctx context.Context, cmd device.Command) error {
	_, err := c.do(ctx, server.Request{Op: server.OpIoctl, Cmd: uint32(cmd)})
	return err
}

// Reset clears the device buffer.
func (c *Client) Reset(ctx context.Context) error {
	return c.Ioctl(ctx, device.CmdReset)
}

// Reopen replaces the remote session with a fresh one at offset zero.
func (c *Client) Reopen(ctx context.Context) error {
	_, err := c.do(ctx, server.Request{Op: server.OpReopen})
	return err
}

// Close ends the session.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
