package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, 256, c.Device.Capacity)
	assert.Equal(t, BackingHeap, c.Device.Backing)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "mychardev.toml", `
[device]
name = "dev1"
capacity = 512
backing = "shm"
shm_dir = "/tmp"

[server]
listen = "127.0.0.1:8000"
path = "/dev/dev1"

[metrics]
listen = ""

[events]
socket = "/tmp/dev1.sock"

[log]
level = "debug"
format = "json"
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DeviceConfig{Name: "dev1", Capacity: 512, Backing: BackingShm, ShmDir: "/tmp"}, c.Device)
	assert.Equal(t, "127.0.0.1:8000", c.Server.Listen)
	assert.Equal(t, "/dev/dev1", c.Server.Path)
	assert.Empty(t, c.Metrics.Listen)
	assert.Equal(t, "/tmp/dev1.sock", c.Events.Socket)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, c.Log)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "c.toml", "[device]\ncapacity = 64\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, c.Device.Capacity)
	assert.Equal(t, "mychardev", c.Device.Name)
	assert.Equal(t, ":7070", c.Server.Listen)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "c.toml", "[device]\nname = \"from-file\"\n")

	t.Setenv("MYCHARDEV_NAME", "from-env")
	t.Setenv("MYCHARDEV_CAPACITY", "128")
	t.Setenv("MYCHARDEV_LISTEN", ":0")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Device.Name)
	assert.Equal(t, 128, c.Device.Capacity)
	assert.Equal(t, ":0", c.Server.Listen)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "MYCHARDEV_EVENTS_SOCKET=/run/dotenv.sock\n")
	t.Cleanup(func() { os.Unsetenv("MYCHARDEV_EVENTS_SOCKET") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/run/dotenv.sock", c.Events.Socket)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeFile(t, dir, "bad.toml", "[device\n")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse")

	t.Setenv("MYCHARDEV_CAPACITY", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "MYCHARDEV_CAPACITY")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty name":     func(c *Config) { c.Device.Name = "" },
		"zero capacity":  func(c *Config) { c.Device.Capacity = 0 },
		"huge capacity":  func(c *Config) { c.Device.Capacity = MaxCapacity + 1 },
		"unknown store":  func(c *Config) { c.Device.Backing = "disk" },
		"shm no dir":     func(c *Config) { c.Device.Backing = BackingShm; c.Device.ShmDir = "" },
		"no listen":      func(c *Config) { c.Server.Listen = "" },
		"relative path":  func(c *Config) { c.Server.Path = "dev/x" },
		"bad log level":  func(c *Config) { c.Log.Level = "loud" },
		"bad log format": func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("dropped")
	logger.Warn("kept", "device", "mychardev")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "mychardev", rec["device"])
}
