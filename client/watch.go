package client

import (
	"context"
	"log/slog"
	"time"
)

// ReconnectDelay is how long Watch waits before redialing.
var ReconnectDelay = 3 * time.Second

// Watch delivers every payload written to the device at url to fn until ctx
// is done, redialing after ReconnectDelay whenever the connection fails.
// Writes landing while fn runs are coalesced: only the latest contents are
// delivered.
func Watch(ctx context.Context, url string, fn func([]byte)) error {
	logger := slog.With("url", url)
	for failures := 0; ; failures++ {
		err := watchSession(ctx, url, logger, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("watch interrupted", "error", err, "failures", failures+1, "retry_in", ReconnectDelay)

		t := time.NewTimer(ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// watchSession runs one connection until it fails.
func watchSession(ctx context.Context, url string, logger *slog.Logger, fn func([]byte)) error {
	c, err := Dial(ctx, url)
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Info("watching")

	for {
		if err := c.Wait(ctx, 0); err != nil {
			return err
		}
		// fresh offset so the new contents are read from the start
		if err := c.Reopen(ctx); err != nil {
			return err
		}
		data, err := c.ReadAll(ctx)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			fn(data)
		}
	}
}
