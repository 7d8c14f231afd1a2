// Command chardevctl drives a device exposed by the mychardev daemon.
//
//	chardevctl [-url URL] write DATA
//	chardevctl [-url URL] read [-n N]
//	chardevctl [-url URL] poll
//	chardevctl [-url URL] wait [-timeout D]
//	chardevctl [-url URL] reset
//	chardevctl [-url URL] ioctl CODE
//	chardevctl [-url URL] watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cmartinez0925/mychardev/client"
	"github.com/cmartinez0925/mychardev/device"
)

const defaultURL = "ws://127.0.0.1:7070/dev/mychardev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "chardevctl:", err)
		if device.IsRetryable(err) {
			os.Exit(75) // EX_TEMPFAIL
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("chardevctl", flag.ContinueOnError)
	url := fs.String("url", envOr("MYCHARDEV_URL", defaultURL), "device WebSocket URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "watch" {
		err := client.Watch(ctx, *url, func(b []byte) {
			fmt.Fprintf(out, "%s\n", b)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	c, err := client.Dial(ctx, *url)
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd {
	case "write":
		if len(rest) != 1 {
			return errors.New("usage: write DATA")
		}
		n, err := c.Write(ctx, []byte(rest[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d bytes\n", n)

	case "read":
		sub := flag.NewFlagSet("read", flag.ContinueOnError)
		size := sub.Int("n", 0, "bytes to read (0 reads to EOF)")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		var b []byte
		if *size > 0 {
			b, err = c.Read(ctx, *size)
			if errors.Is(err, io.EOF) {
				err = nil
			}
		} else {
			b, err = c.ReadAll(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", b)

	case "poll":
		mask, err := c.Poll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s readable=%t\n", mask, mask.Readable())

	case "wait":
		sub := flag.NewFlagSet("wait", flag.ContinueOnError)
		timeout := sub.Duration("timeout", 0, "give up after this long (0 waits forever)")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		if err := c.Wait(ctx, *timeout); err != nil {
			return err
		}
		fmt.Fprintln(out, "readable")

	case "reset":
		if err := c.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "buffer reset")

	case "ioctl":
		if len(rest) != 1 {
			return errors.New("usage: ioctl CODE")
		}
		code, err := strconv.ParseUint(rest[0], 0, 32)
		if err != nil {
			return fmt.Errorf("ioctl code: %w", err)
		}
		if err := c.Ioctl(ctx, device.Command(code)); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
