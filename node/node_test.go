package node

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmartinez0925/mychardev/client"
	"github.com/cmartinez0925/mychardev/config"
	"github.com/cmartinez0925/mychardev/device"
	"github.com/cmartinez0925/mychardev/ipc"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.Device.Name = "testdev"
	c.Device.Backing = config.BackingShm
	c.Device.ShmDir = t.TempDir()
	c.Server.Listen = "127.0.0.1:0"
	c.Metrics.Listen = "127.0.0.1:0"
	require.NoError(t, c.Validate())
	return c
}

func TestNode_ServesDevice(t *testing.T) {
	cfg := testConfig(t)
	sock := filepath.Join(t.TempDir(), "ev.sock")
	cfg.Events.Socket = sock
	events, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer events.Close()

	n, err := Register(cfg, nil)
	require.NoError(t, err)
	segPath := filepath.Join(cfg.Device.ShmDir, cfg.Device.Name)
	_, err = os.Stat(segPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- n.Serve(ctx) }()

	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	c, err := client.Dial(dctx, n.URL())
	require.NoError(t, err)

	_, err = c.Write(dctx, []byte("over the wire"))
	require.NoError(t, err)
	got, err := c.ReadAll(dctx)
	require.NoError(t, err)
	assert.Equal(t, "over the wire", string(got))

	// the write event reaches the socket
	conn, err := events.Accept()
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)
	conn.Close()
	var msg ipc.Message
	require.NoError(t, json.Unmarshal(line, &msg))
	assert.Equal(t, device.EventWrite, msg.Type)

	// metrics are exposed
	resp, err := http.Get("http://" + n.MetricsAddr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `mychardev_write_bytes_total{device="testdev"} 13`)

	require.NoError(t, c.Close())
	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	require.NoError(t, n.Close())
	_, err = os.Stat(segPath)
	assert.True(t, os.IsNotExist(err), "teardown removes the shm segment")
	assert.ErrorIs(t, n.Device().Reset(), device.ErrClosed)
}

func TestRegister_UnwindsOnListenFailure(t *testing.T) {
	cfg := testConfig(t)

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	cfg.Server.Listen = busy.Addr().String()

	n, err := Register(cfg, nil)
	require.Error(t, err)
	assert.Nil(t, n)
	assert.Contains(t, err.Error(), "device listener")

	entries, err := os.ReadDir(cfg.Device.ShmDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "shm segment left behind")
}

func TestRegister_UnwindsOnMetricsFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Listen = "127.0.0.1:-1"

	_, err := Register(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listener")

	entries, err := os.ReadDir(cfg.Device.ShmDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegister_ShmFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.ShmDir = filepath.Join(t.TempDir(), "missing")

	_, err := Register(cfg, nil)
	assert.ErrorContains(t, err, "create shm segment")
}

func TestRegister_HeapWithoutMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Backing = config.BackingHeap
	cfg.Device.Capacity = 32
	cfg.Metrics.Listen = ""

	n, err := Register(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, n.MetricsAddr())
	assert.Equal(t, 32, n.Device().Capacity())
	require.NoError(t, n.Close())
}
