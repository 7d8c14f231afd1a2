// Package node registers a device under its configured name and exposes it:
// backing memory, the device itself, the WebSocket endpoint, metrics and the
// event socket. A failed registration unwinds whatever was already created,
// newest first.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmartinez0925/mychardev/config"
	"github.com/cmartinez0925/mychardev/device"
	"github.com/cmartinez0925/mychardev/ipc"
	"github.com/cmartinez0925/mychardev/metrics"
	"github.com/cmartinez0925/mychardev/server"
	"github.com/cmartinez0925/mychardev/shm"
)

const shutdownTimeout = 5 * time.Second

type step struct {
	name string
	undo func() error
}

// Node is a registered device and everything exposing it.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	dev     *device.Device
	metrics *metrics.Prometheus
	events  *ipc.Publisher
	server  *server.Server

	httpSrv    *http.Server
	ln         net.Listener
	metricsSrv *http.Server
	metricsLn  net.Listener

	steps []step
}

// Register creates the device described by cfg and binds its listeners. On
// error every resource created so far has been released.
func Register(cfg *config.Config, logger *slog.Logger) (_ *Node, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{cfg: cfg, logger: logger.With("node", cfg.Device.Name)}
	defer func() {
		if err != nil {
			n.logger.Error("registration failed, unwinding", "error", err)
			n.unwind()
		}
	}()

	store, err := n.newStore()
	if err != nil {
		return nil, err
	}

	opts := []device.Option{
		device.WithName(cfg.Device.Name),
		device.WithStore(store),
		device.WithLogger(logger),
	}

	if cfg.Metrics.Listen != "" {
		n.metrics = metrics.NewPrometheus(cfg.Device.Name)
		opts = append(opts, device.WithCollector(n.metrics))

		n.metricsLn, err = n.listen("metrics listener", cfg.Metrics.Listen)
		if err != nil {
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.metrics.Handler())
		n.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	if cfg.Events.Socket != "" {
		n.events = ipc.NewPublisher(cfg.Events.Socket, logger)
		opts = append(opts, device.WithPublisher(n.events))
	}

	n.dev, err = device.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	n.push("device", n.dev.Close)

	n.server = server.New(n.dev, server.WithLogger(logger))
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, n.server)
	n.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	n.ln, err = n.listen("device listener", cfg.Server.Listen)
	if err != nil {
		return nil, err
	}

	n.logger.Info("registered",
		"url", n.URL(),
		"capacity", n.dev.Capacity(),
		"backing", cfg.Device.Backing)
	return n, nil
}

func (n *Node) newStore() (device.Store, error) {
	cfg := n.cfg.Device
	if cfg.Backing != config.BackingShm {
		return device.NewHeapStore(cfg.Capacity)
	}

	seg, err := shm.NewSegment(cfg.ShmDir, cfg.Name, cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("create shm segment: %w", err)
	}
	n.push("shm segment", func() error {
		err := seg.Close()
		if uerr := seg.Unlink(); err == nil {
			err = uerr
		}
		return err
	})
	n.logger.Info("shared memory segment", "path", seg.Path())
	return seg, nil
}

func (n *Node) listen(name, addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", name, addr, err)
	}
	n.push(name, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	return ln, nil
}

func (n *Node) push(name string, undo func() error) {
	n.steps = append(n.steps, step{name: name, undo: undo})
}

// unwind releases resources in reverse creation order.
func (n *Node) unwind() error {
	var errs []error
	for i := len(n.steps) - 1; i >= 0; i-- {
		s := n.steps[i]
		n.logger.Info("unregistering", "resource", s.name)
		if err := s.undo(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	n.steps = nil
	return errors.Join(errs...)
}

// Device returns the registered device.
func (n *Node) Device() *device.Device { return n.dev }

// Addr returns the device listener address.
func (n *Node) Addr() net.Addr { return n.ln.Addr() }

// MetricsAddr returns the metrics listener address, or nil when disabled.
func (n *Node) MetricsAddr() net.Addr {
	if n.metricsLn == nil {
		return nil
	}
	return n.metricsLn.Addr()
}

// URL returns the WebSocket URL of the device.
func (n *Node) URL() string {
	return "ws://" + n.ln.Addr().String() + n.cfg.Server.Path
}

// Serve runs the listeners and the event publisher until ctx is done or one
// of them fails, then shuts the listeners down. It does not tear the device
// down; call Close for that.
func (n *Node) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serveHTTP(n.httpSrv, n.ln) })
	if n.metricsSrv != nil {
		g.Go(func() error { return serveHTTP(n.metricsSrv, n.metricsLn) })
	}
	if n.events != nil {
		g.Go(func() error { return n.events.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return n.shutdown()
	})

	return g.Wait()
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked WebSocket connections are not tracked by http.Server
	n.server.Close()

	err := n.httpSrv.Shutdown(ctx)
	if n.metricsSrv != nil {
		err = errors.Join(err, n.metricsSrv.Shutdown(ctx))
	}
	return err
}

// Close tears the node down in reverse registration order.
func (n *Node) Close() error {
	if n.server != nil {
		n.server.Close()
	}
	err := n.unwind()
	n.logger.Info("unregistered")
	return err
}
