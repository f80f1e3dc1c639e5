package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/protocol"
)

// ListDirectory asks the device for the contents of path and collects the
// entry notifications that arrive within cfg.ListWindow.
//
// The listing is best effort: there is no acknowledgment or retry, entries
// arrive in whatever order the device sends them and duplicates are passed
// through. Records with an empty name and malformed records are skipped.
// Collection always runs for the full window.
func ListDirectory(ctx context.Context, l link.Link, cfg Config, path string, opts ...Option) ([]protocol.DirEntry, error) {
	if err := cfg.Validate(l.MTU()); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	cmd := protocol.NameCommand(protocol.OpListDir, path)
	if err := protocol.CheckSize(cmd, l.MTU()); err != nil {
		return nil, err
	}

	in, unsubscribe, err := subscribe(ctx, l, o.log)
	if err != nil {
		return nil, fmt.Errorf("enable notifications: %w", err)
	}
	if err := l.Write(ctx, cmd); err != nil {
		_ = unsubscribe()
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	entries, err := collect(ctx, in, cfg.ListWindow, o)

	if uerr := unsubscribe(); uerr != nil && err == nil {
		err = fmt.Errorf("stop notifications: %w", uerr)
	}
	return entries, err
}

func collect(ctx context.Context, in <-chan []byte, window time.Duration, o *options) ([]protocol.DirEntry, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	var entries []protocol.DirEntry
	for {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()

		case <-timer.C:
			return entries, nil

		case raw, ok := <-in:
			if !ok {
				return entries, link.ErrClosed
			}
			f, err := protocol.Decode(raw)
			if err != nil || f.Op != protocol.OpFileInfo {
				continue
			}
			e, ok, err := protocol.DecodeDirEntry(f.Payload)
			if err != nil {
				o.log.Debug(ctx, "skipping malformed entry", "error", err)
				continue
			}
			if !ok {
				continue
			}
			entries = append(entries, e)
			if o.entry != nil {
				o.entry(e)
			}
		}
	}
}
