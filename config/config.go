package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// MaxCapacity bounds the configurable buffer size.
const MaxCapacity = 1 << 20

// Backing stores.
const (
	BackingHeap = "heap"
	BackingShm  = "shm"
)

type Config struct {
	Device  DeviceConfig  `toml:"device"`
	Server  ServerConfig  `toml:"server"`
	Metrics MetricsConfig `toml:"metrics"`
	Events  EventsConfig  `toml:"events"`
	Log     LogConfig     `toml:"log"`
}

type DeviceConfig struct {
	Name     string `toml:"name"`
	Capacity int    `toml:"capacity"`
	// Backing is "heap" or "shm" (a file mmap'd from ShmDir).
	Backing string `toml:"backing"`
	ShmDir  string `toml:"shm_dir"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
	// Path is the HTTP path the device node is exposed on.
	Path string `toml:"path"`
}

type MetricsConfig struct {
	// Listen is the Prometheus listen address; empty disables metrics.
	Listen string `toml:"listen"`
}

type EventsConfig struct {
	// Socket is the Unix socket events are published to; empty disables.
	Socket string `toml:"socket"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:     "mychardev",
			Capacity: 256,
			Backing:  BackingHeap,
			ShmDir:   "/dev/shm",
		},
		Server: ServerConfig{
			Listen: ":7070",
			Path:   "/dev/mychardev",
		},
		Metrics: MetricsConfig{Listen: ":9090"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the TOML file at path (skipped when path is empty) and MYCHARDEV_*
// environment variables, which may come from a .env file in the working
// directory.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MYCHARDEV_NAME":           &c.Device.Name,
		"MYCHARDEV_BACKING":        &c.Device.Backing,
		"MYCHARDEV_SHM_DIR":        &c.Device.ShmDir,
		"MYCHARDEV_LISTEN":         &c.Server.Listen,
		"MYCHARDEV_PATH":           &c.Server.Path,
		"MYCHARDEV_METRICS_LISTEN": &c.Metrics.Listen,
		"MYCHARDEV_EVENTS_SOCKET":  &c.Events.Socket,
		"MYCHARDEV_LOG_LEVEL":      &c.Log.Level,
		"MYCHARDEV_LOG_FORMAT":     &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("MYCHARDEV_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYCHARDEV_CAPACITY: %w", err)
		}
		c.Device.Capacity = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Device.Name == "":
		return errors.New("device.name is required")
	case c.Device.Capacity <= 0 || c.Device.Capacity > MaxCapacity:
		return fmt.Errorf("device.capacity %d out of range (1..%d)", c.Device.Capacity, MaxCapacity)
	case c.Device.Backing != BackingHeap && c.Device.Backing != BackingShm:
		return fmt.Errorf("device.backing %q: want %q or %q", c.Device.Backing, BackingHeap, BackingShm)
	case c.Device.Backing == BackingShm && c.Device.ShmDir == "":
		return errors.New("device.shm_dir is required for shm backing")
	case c.Server.Listen == "":
		return errors.New("server.listen is required")
	case !strings.HasPrefix(c.Server.Path, "/"):
		return fmt.Errorf("server.path %q must start with /", c.Server.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	return nil
}
