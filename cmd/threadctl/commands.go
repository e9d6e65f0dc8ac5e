package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/helixir/comment-thread-store/internal/database"
	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/service"
)

// commands is what the subcommands operate on.
type commands struct {
	svc    *service.ThreadService
	health func(context.Context) database.Health
}

// execute runs one subcommand and writes its JSON result to out.
// Absent threads print as null.
func (c *commands) execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command specified")
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "health":
		if len(rest) != 0 {
			return fmt.Errorf("usage: health")
		}
		h := c.health(ctx)
		if err := writeJSON(out, h); err != nil {
			return err
		}
		if !h.Healthy() {
			return fmt.Errorf("%s store is %s: %s", h.Backend, h.Status, h.Error)
		}
		return nil

	case "save":
		if len(rest) > 1 {
			return fmt.Errorf("usage: save [file]")
		}
		src := in
		if len(rest) == 1 && rest[0] != "-" {
			f, err := os.Open(rest[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", rest[0], err)
			}
			defer f.Close()
			src = f
		}
		return save(ctx, c.svc, src, out)

	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("usage: get <id>")
		}
		thread, err := c.svc.Thread(ctx, rest[0])
		if err != nil {
			return err
		}
		return writeJSON(out, thread)

	case "subscribe":
		if len(rest) < 2 {
			return fmt.Errorf("usage: subscribe <id> <subscriber>...")
		}
		if err := c.svc.Subscribe(ctx, rest[0], rest[1:]...); err != nil {
			return err
		}
		thread, err := c.svc.Thread(ctx, rest[0])
		if err != nil {
			return err
		}
		return writeJSON(out, thread)

	case "private":
		if len(rest) != 1 {
			return fmt.Errorf("usage: private <application-id>")
		}
		thread, err := c.svc.PrivateThread(ctx, rest[0])
		if err != nil {
			return err
		}
		return writeJSON(out, thread)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// save accepts one thread object or an array of them.
func save(ctx context.Context, svc *service.ThreadService, src io.Reader, out io.Writer) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)

	if bytes.HasPrefix(data, []byte("[")) {
		var threads []*domain.CommentThread
		if err := json.Unmarshal(data, &threads); err != nil {
			return fmt.Errorf("decode threads: %w", err)
		}
		saved, saveErr := svc.CreateThreads(ctx, threads)
		if err := writeJSON(out, saved); err != nil {
			return err
		}
		return saveErr
	}

	var thread domain.CommentThread
	if err := json.Unmarshal(data, &thread); err != nil {
		return fmt.Errorf("decode thread: %w", err)
	}
	saved, err := svc.CreateThread(ctx, &thread)
	if err != nil {
		return err
	}
	return writeJSON(out, saved)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
