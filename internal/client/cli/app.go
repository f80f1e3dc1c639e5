package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/blefs/internal/client/config"
	"github.com/dmitrijs2005/blefs/internal/client/db"
	"github.com/dmitrijs2005/blefs/internal/client/repositories/history"
	"github.com/dmitrijs2005/blefs/internal/client/session"
	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/link/bluez"
	"github.com/dmitrijs2005/blefs/internal/logging"
)

var (
	ErrUsage     = errors.New("usage")
	ErrNoAddress = errors.New("no device address, use -a")
)

// Deps are the outside collaborators of App.
type Deps struct {
	Dialer  link.Dialer
	Scanner link.Scanner
	// History may be nil, which disables the history command and recording.
	History history.Repository
	Log     logging.Logger

	In  io.Reader
	Out io.Writer
	Err io.Writer
	// ErrFd is the descriptor behind Err, used to decide whether progress is
	// drawn. Negative disables progress.
	ErrFd int
}

// App executes blefs commands.
type App struct {
	cfg     *config.Config
	dialer  link.Dialer
	scanner link.Scanner
	history history.Repository
	log     logging.Logger

	in    io.Reader
	out   io.Writer
	err   io.Writer
	errFd int
}

// NewApp builds an App from explicit collaborators.
func NewApp(cfg *config.Config, deps Deps) *App {
	a := &App{
		cfg:     cfg,
		dialer:  deps.Dialer,
		scanner: deps.Scanner,
		history: deps.History,
		log:     deps.Log,
		in:      deps.In,
		out:     deps.Out,
		err:     deps.Err,
		errFd:   deps.ErrFd,
	}
	if a.log == nil {
		a.log = logging.NewNop()
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.err == nil {
		a.err = os.Stderr
	}
	return a
}

// Open wires the App to BlueZ and the history database named in cfg. The
// returned func releases the database.
func Open(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	log := logging.New(os.Stderr, cfg.Verbose)

	var (
		hist    history.Repository
		closeDB = func() {}
	)
	if cfg.DBPath != "" {
		conn, err := db.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open history %s: %w", cfg.DBPath, err)
		}
		interrupted, pruned, err := history.Maintain(ctx, conn, cfg.HistoryKeep)
		if err != nil {
			log.Warn(ctx, "history maintenance", "error", err)
		} else if interrupted > 0 || pruned > 0 {
			log.Debug(ctx, "history maintenance", "interrupted", interrupted, "pruned", pruned)
		}
		hist = history.NewSQLiteRepository(conn)
		closeDB = func() { _ = conn.Close() }
	}

	app := NewApp(cfg, Deps{
		Dialer:  &bluez.Dialer{Adapter: cfg.Adapter, Log: log},
		Scanner: &bluez.Scanner{Adapter: cfg.Adapter, Log: log},
		History: hist,
		Log:     log,
		ErrFd:   int(os.Stderr.Fd()),
	})
	return app, closeDB, nil
}

// Run executes the command in args, or starts the interactive shell when
// args is empty. It returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.Shell(ctx)
		return 0
	}
	if err := dispatch(ctx, a, args); err != nil {
		a.report(err)
		return 1
	}
	return 0
}

func (a *App) report(err error) {
	if errors.Is(err, ErrUsage) {
		fmt.Fprintln(a.err, err)
		return
	}
	fmt.Fprintln(a.err, "error:", err)
}

func (a *App) session() (*session.Session, error) {
	if a.cfg.Address == "" {
		return nil, ErrNoAddress
	}
	opts := []session.Option{session.WithLogger(a.log)}
	if a.history != nil {
		opts = append(opts, session.WithRecorder(a.history))
	}
	return session.New(a.dialer, a.cfg.Address, a.cfg.Transfer(), opts...), nil
}

var _ session.Recorder = (history.Repository)(nil)
