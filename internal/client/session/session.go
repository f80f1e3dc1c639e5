// Package session runs file operations against one device, opening a fresh
// link for each operation and releasing it on every exit path.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/blefs/internal/client/models"
	"github.com/dmitrijs2005/blefs/internal/cryptox"
	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/logging"
	"github.com/dmitrijs2005/blefs/internal/protocol"
	"github.com/dmitrijs2005/blefs/internal/transfer"
	"github.com/google/uuid"
)

// Recorder keeps a history of operations. Failures to record are logged and
// never fail the operation itself.
type Recorder interface {
	Start(ctx context.Context, t *models.Transfer) error
	Finish(ctx context.Context, id string, out models.Outcome) error
}

// Session is bound to one device address.
type Session struct {
	dialer  link.Dialer
	address string
	cfg     transfer.Config
	log     logging.Logger
	rec     Recorder
}

// Option configures a Session.
type Option func(*Session)

// WithLogger routes session and engine logs to l.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithRecorder stores every operation through r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.rec = r }
}

// New returns a Session that reaches address through d.
func New(d link.Dialer, address string, cfg transfer.Config, opts ...Option) *Session {
	s := &Session{dialer: d, address: address, cfg: cfg, log: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("device", address)
	return s
}

// Create makes an empty file. The device does not answer; success means the
// command was written.
func (s *Session) Create(ctx context.Context, name string) error {
	return s.command(ctx, models.OpCreate, protocol.OpCreateFile, name)
}

// Delete removes a file or an empty directory.
func (s *Session) Delete(ctx context.Context, name string) error {
	return s.command(ctx, models.OpDelete, protocol.OpDeleteFile, name)
}

// Mkdir creates a directory.
func (s *Session) Mkdir(ctx context.Context, name string) error {
	return s.command(ctx, models.OpMkdir, protocol.OpMkdir, name)
}

func (s *Session) command(ctx context.Context, op models.Op, code protocol.Opcode, name string) error {
	frame := protocol.NameCommand(code, name)
	return s.run(ctx, op, name, func(ctx context.Context, l link.Link, _ logging.Logger) (result, error) {
		if err := protocol.CheckSize(frame, l.MTU()); err != nil {
			return result{}, err
		}
		return result{}, l.Write(ctx, frame)
	})
}

// List returns the entries of the remote directory path. It always takes the
// full listing window of the session's config.
func (s *Session) List(ctx context.Context, path string, opts ...transfer.Option) ([]protocol.DirEntry, error) {
	var entries []protocol.DirEntry
	err := s.run(ctx, models.OpList, path, func(ctx context.Context, l link.Link, log logging.Logger) (result, error) {
		var err error
		entries, err = transfer.ListDirectory(ctx, l, s.cfg, path, withLogger(log, opts)...)
		return result{n: int64(len(entries))}, err
	})
	return entries, err
}

// Read downloads a remote file. On failure no data is returned.
func (s *Session) Read(ctx context.Context, req transfer.ReadRequest, opts ...transfer.Option) ([]byte, error) {
	var data []byte
	err := s.run(ctx, models.OpRead, req.Path, func(ctx context.Context, l link.Link, log logging.Logger) (result, error) {
		b, st, err := transfer.Download(ctx, l, s.cfg, req, withLogger(log, opts)...)
		log.Debug(ctx, "download stats", "frames", st.Frames, "ignored", st.Ignored,
			"dropped", st.Dropped, "timeouts", st.Timeouts)
		if err != nil {
			return result{n: int64(st.Bytes)}, err
		}
		data = b
		return result{n: int64(len(b)), sum: cryptox.Checksum(b)}, nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write uploads data to the remote path.
func (s *Session) Write(ctx context.Context, remote string, data []byte, opts ...transfer.Option) (transfer.Stats, error) {
	var st transfer.Stats
	err := s.run(ctx, models.OpWrite, remote, func(ctx context.Context, l link.Link, log logging.Logger) (result, error) {
		var err error
		st, err = transfer.Upload(ctx, l, s.cfg, remote, data, withLogger(log, opts)...)
		log.Debug(ctx, "upload stats", "frames", st.Frames, "retransmits", st.Retransmits,
			"rewinds", st.Rewinds, "acks", st.Acks)
		if err != nil {
			return result{n: int64(st.Bytes)}, err
		}
		return result{n: int64(st.Bytes), sum: cryptox.Checksum(data)}, nil
	})
	return st, err
}

func withLogger(log logging.Logger, opts []transfer.Option) []transfer.Option {
	return append([]transfer.Option{transfer.WithLogger(log)}, opts...)
}

// result is what an operation reports for the history record.
type result struct {
	n   int64
	sum string
}

type opFunc func(ctx context.Context, l link.Link, log logging.Logger) (result, error)

// run dials, runs fn and closes the link. The link is closed even if fn
// panics.
func (s *Session) run(ctx context.Context, op models.Op, remote string, fn opFunc) (err error) {
	id := uuid.NewString()
	log := s.log.With("op", string(op), "op_id", id, "remote", remote)
	s.recordStart(ctx, log, &models.Transfer{
		ID: id, Op: op, Device: s.address, Remote: remote, Status: models.StatusRunning,
	})

	var res result
	defer func() {
		if p := recover(); p != nil {
			s.recordFinish(ctx, log, id, res, fmt.Errorf("panic: %v", p))
			panic(p)
		}
		s.recordFinish(ctx, log, id, res, err)
	}()

	l, err := s.dialer.Dial(ctx, s.address)
	if err != nil {
		log.Error(ctx, "dial failed", "error", err)
		return fmt.Errorf("dial %s: %w", s.address, err)
	}
	defer func() {
		if cerr := l.Close(); cerr != nil {
			log.Warn(ctx, "close link", "error", cerr)
		}
	}()

	res, err = fn(ctx, l, log)
	if err != nil {
		log.Warn(ctx, "operation failed", "error", err)
		return fmt.Errorf("%s %s: %w", op, remote, err)
	}
	log.Info(ctx, "operation complete", "bytes", res.n)
	return nil
}

func (s *Session) recordStart(ctx context.Context, log logging.Logger, t *models.Transfer) {
	if s.rec == nil {
		return
	}
	if err := s.rec.Start(ctx, t); err != nil {
		log.Warn(ctx, "record start", "error", err)
	}
}

func (s *Session) recordFinish(ctx context.Context, log logging.Logger, id string, res result, err error) {
	if s.rec == nil {
		return
	}
	out := models.Outcome{Status: StatusOf(err), Bytes: res.n, Checksum: res.sum}
	if err != nil {
		out.Error = err.Error()
	}
	if rerr := s.rec.Finish(context.WithoutCancel(ctx), id, out); rerr != nil {
		log.Warn(ctx, "record finish", "error", rerr)
	}
}

// StatusOf classifies the error an operation returned.
func StatusOf(err error) models.Status {
	switch {
	case err == nil:
		return models.StatusOK
	case errors.Is(err, transfer.ErrTimeout):
		return models.StatusTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.StatusCancelled
	default:
		return models.StatusFailed
	}
}
