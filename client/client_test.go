package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmartinez0925/mychardev/device"
	"github.com/cmartinez0925/mychardev/server"
)

func startDevice(t *testing.T) (*device.Device, string) {
	t.Helper()
	dev, err := device.New()
	require.NoError(t, err)
	srv := server.New(dev)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
		dev.Close()
	})
	return dev, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Scenario(t *testing.T) {
	_, url := startDevice(t)
	c := dial(t, url)
	ctx := context.Background()

	n, err := c.Write(ctx, []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	mask, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, mask.Readable())

	b, err := c.Read(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "01234", string(b))

	mask, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, mask.Readable())

	b, err = c.Read(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "56789", string(b))

	_, err = c.Read(ctx, 5)
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_RemoteErrors(t *testing.T) {
	dev, url := startDevice(t)
	c := dial(t, url)
	ctx := context.Background()

	_, err := c.Write(ctx, []byte("keep"))
	require.NoError(t, err)

	_, err = c.Write(ctx, make([]byte, 300))
	assert.ErrorIs(t, err, device.ErrInvalidArgument)
	assert.Equal(t, 4, dev.Len())

	err = c.Ioctl(ctx, device.IO('k', 9))
	assert.ErrorIs(t, err, device.ErrUnsupported)

	err = c.Wait(ctx, 0)
	require.NoError(t, err, "data is already available")

	b, err := c.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(b))

	err = c.Wait(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, device.ErrInterrupted)
	assert.True(t, device.IsRetryable(err))
}

func TestClient_ResetAndReopen(t *testing.T) {
	_, url := startDevice(t)
	c := dial(t, url)
	ctx := context.Background()

	_, err := c.Write(ctx, []byte("payload"))
	require.NoError(t, err)
	b, err := c.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	require.NoError(t, c.Reopen(ctx))
	b, err = c.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	require.NoError(t, c.Reset(ctx))
	require.NoError(t, c.Reopen(ctx))
	_, err = c.Read(ctx, 1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWatch_DeliversWrites(t *testing.T) {
	dev, url := startDevice(t)

	var (
		mu  sync.Mutex
		got []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, url, func(b []byte) {
			mu.Lock()
			got = append(got, string(b))
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return dev.Sessions() == 1 }, 2*time.Second, time.Millisecond)

	w := dev.Open()
	defer w.Close()
	for _, msg := range []string{"first", "second"} {
		_, err := w.Write([]byte(msg))
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) > 0 && got[len(got)-1] == msg
		}, 2*time.Second, time.Millisecond)
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatch_RedialsUntilCancelled(t *testing.T) {
	old := ReconnectDelay
	ReconnectDelay = time.Millisecond
	defer func() { ReconnectDelay = old }()

	var dials atomic.Int32
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		dials.Add(1)
		http.Error(w, "not a device", http.StatusNotFound)
	}))
	defer hs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, "ws"+strings.TrimPrefix(hs.URL, "http"), func([]byte) {
			t.Error("nothing should be delivered")
		})
	}()

	require.Eventually(t, func() bool { return dials.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
