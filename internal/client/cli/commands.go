package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/blefs/internal/filex"
	"github.com/dmitrijs2005/blefs/internal/protocol"
	"github.com/dmitrijs2005/blefs/internal/transfer"
)

// historyLimit is how many records the history command shows.
const historyLimit = 20

// execIface is the command surface shared by one-shot runs and the shell.
// App satisfies it; tests provide a lightweight stub.
type execIface interface {
	Scan(ctx context.Context) error
	List(ctx context.Context, dir string) error
	Read(ctx context.Context, req transfer.ReadRequest, local string) error
	Write(ctx context.Context, local, remote string) error
	Create(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Mkdir(ctx context.Context, name string) error
	History(ctx context.Context) error
}

const usage = `commands:
  scan                                    list nearby devices
  ls <dir>                                list a remote directory
  read <offset> <stride> <remote> [local] download a file
  write <local> <remote>                  upload a file
  create <name>                           create an empty file
  rm <name>                               delete a file or empty directory
  mkdir <name>                            create a directory
  history                                 show recent operations`

func usageErr(format string) error {
	return fmt.Errorf("%w: %s", ErrUsage, format)
}

// dispatch runs the command named by args[0].
func dispatch(ctx context.Context, a execIface, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "scan":
		return a.Scan(ctx)

	case "ls":
		if len(rest) != 1 {
			return usageErr("ls <dir>")
		}
		return a.List(ctx, rest[0])

	case "read":
		if len(rest) < 3 || len(rest) > 4 {
			return usageErr("read <offset> <stride> <remote> [local]")
		}
		offset, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return usageErr("offset must be a non-negative integer")
		}
		stride, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return usageErr("stride must be a non-negative integer")
		}
		local := path.Base(rest[2])
		if len(rest) == 4 {
			local = rest[3]
		}
		req := transfer.ReadRequest{Offset: uint32(offset), Stride: uint32(stride), Path: rest[2]}
		return a.Read(ctx, req, local)

	case "write":
		if len(rest) != 2 {
			return usageErr("write <local> <remote>")
		}
		return a.Write(ctx, rest[0], rest[1])

	case "create", "rm", "mkdir":
		if len(rest) != 1 {
			return usageErr(cmd + " <name>")
		}
		switch cmd {
		case "create":
			return a.Create(ctx, rest[0])
		case "rm":
			return a.Delete(ctx, rest[0])
		default:
			return a.Mkdir(ctx, rest[0])
		}

	case "history":
		return a.History(ctx)

	case "help":
		return fmt.Errorf("%w\n%s", ErrUsage, usage)

	default:
		return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, cmd, usage)
	}
}

// Scan prints the devices seen during the scan window.
func (a *App) Scan(ctx context.Context) error {
	devices, err := a.scanner.Scan(ctx, a.cfg.ScanWindow)
	if err != nil {
		return err
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(a.out, "Device %s found with address %s (rssi %d)\n", name, d.Address, d.RSSI)
	}
	return nil
}

// List prints entries as they arrive.
func (a *App) List(ctx context.Context, dir string) error {
	s, err := a.session()
	if err != nil {
		return err
	}
	_, err = s.List(ctx, dir, transfer.WithEntry(func(e protocol.DirEntry) {
		fmt.Fprintln(a.out, e.String())
	}))
	return err
}

// Read downloads a file and stores it at local. Nothing is written unless the
// download completes.
func (a *App) Read(ctx context.Context, req transfer.ReadRequest, local string) error {
	s, err := a.session()
	if err != nil {
		return err
	}

	p := a.newProgress("read "+req.Path, 0)
	data, err := s.Read(ctx, req, transfer.WithProgress(p.add))
	p.done()
	if errors.Is(err, transfer.ErrTimeout) {
		fmt.Fprintln(a.out, "Timeout: no data received, nothing written")
		return err
	}
	if err != nil {
		return err
	}

	if err := filex.WriteFileAtomic(local, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Read %d bytes from %s into %s\n", len(data), req.Path, local)
	return nil
}

// Write uploads the local file to remote.
func (a *App) Write(ctx context.Context, local, remote string) error {
	s, err := a.session()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}

	p := a.newProgress("write "+remote, len(data))
	st, err := s.Write(ctx, remote, data, transfer.WithProgress(p.add))
	p.done()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %d bytes from %s to %s (%d retransmits)\n", st.Bytes, local, remote, st.Retransmits)
	return nil
}

func (a *App) Create(ctx context.Context, name string) error {
	s, err := a.session()
	if err != nil {
		return err
	}
	return s.Create(ctx, name)
}

func (a *App) Delete(ctx context.Context, name string) error {
	s, err := a.session()
	if err != nil {
		return err
	}
	return s.Delete(ctx, name)
}

func (a *App) Mkdir(ctx context.Context, name string) error {
	s, err := a.session()
	if err != nil {
		return err
	}
	return s.Mkdir(ctx, name)
}

// History prints the most recent operations.
func (a *App) History(ctx context.Context) error {
	if a.history == nil {
		return errors.New("history is disabled")
	}
	recs, err := a.history.List(ctx, historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tOP\tREMOTE\tSTATUS\tBYTES\tDURATION\tCHECKSUM")
	for _, r := range recs {
		sum := r.Checksum
		if len(sum) > 16 {
			sum = sum[:16]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Op, r.Remote, r.Status, r.Bytes,
			r.Duration().Round(time.Millisecond), sum)
	}
	return w.Flush()
}
