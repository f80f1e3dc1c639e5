package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/protocol"
)

const noTerminal = -1

// sendWindow is the go-back-N state of one upload.
//
// Invariant outside a rewind: nextAck <= nextSend <= nextAck+W.
type sendWindow struct {
	nextSend int
	nextAck  int
	terminal int // nextSend right after the empty frame was scheduled, or noTerminal
	sent     int // highest nextSend ever reached, to tell first sends from resends
}

func newSendWindow() *sendWindow {
	return &sendWindow{terminal: noTerminal}
}

func (w *sendWindow) done() bool {
	return w.terminal != noTerminal && w.nextAck == w.terminal
}

func (w *sendWindow) canSend(window int) bool {
	if w.terminal != noTerminal && w.nextSend == w.terminal {
		return false
	}
	return w.nextSend < w.nextAck+window
}

// ack advances the window if seq acknowledges the oldest outstanding frame.
// Any other number leaves the window untouched.
func (w *sendWindow) ack(seq uint8) bool {
	if w.nextAck >= w.nextSend || seq != uint8(w.nextAck) {
		return false
	}
	w.nextAck++
	return true
}

func (w *sendWindow) rewind() {
	w.nextSend = w.nextAck
}

type sender struct {
	cfg  Config
	link link.Link
	in   <-chan []byte
	data []byte
	win  *sendWindow
	opts *options

	timeouts int
	stats    Stats
}

// Upload writes data to the remote file at path.
//
// It sends the begin-write command and then the content as a go-back-N
// stream of data frames followed by an empty terminal frame. It returns once
// the terminal frame is acknowledged. Each wait for an acknowledgment is
// bounded by cfg.AckTimeout; an expiry resends the whole outstanding window.
// After cfg.UploadMaxTimeouts consecutive expiries it fails with
// ErrRetriesExhausted.
func Upload(ctx context.Context, l link.Link, cfg Config, path string, data []byte, opts ...Option) (Stats, error) {
	if err := cfg.Validate(l.MTU()); err != nil {
		return Stats{}, err
	}
	o := newOptions(opts)

	cmd := protocol.NameCommand(protocol.OpWriteFile, path)
	if err := protocol.CheckSize(cmd, l.MTU()); err != nil {
		return Stats{}, err
	}

	in, unsubscribe, err := subscribe(ctx, l, o.log)
	if err != nil {
		return Stats{}, fmt.Errorf("enable notifications: %w", err)
	}
	defer unsubscribe()

	if err := l.Write(ctx, cmd); err != nil {
		return Stats{}, fmt.Errorf("begin write: %w", err)
	}

	s := &sender{cfg: cfg, link: l, in: in, data: data, win: newSendWindow(), opts: o}
	err = s.run(ctx)
	return s.stats, err
}

func (s *sender) run(ctx context.Context) error {
	for !s.win.done() {
		if err := s.fill(ctx); err != nil {
			return err
		}
		if err := s.await(ctx); err != nil {
			return err
		}
	}
	s.opts.log.Debug(ctx, "upload complete",
		"frames", s.stats.Frames, "rewinds", s.stats.Rewinds, "bytes", s.stats.Bytes)
	return nil
}

// chunk returns the content carried by frame n; empty past the end.
func (s *sender) chunk(n int) []byte {
	start := n * s.cfg.FrameLength
	if start >= len(s.data) {
		return nil
	}
	return s.data[start:min(start+s.cfg.FrameLength, len(s.data))]
}

func (s *sender) fill(ctx context.Context) error {
	w := s.win
	for w.canSend(s.cfg.WindowLength) {
		chunk := s.chunk(w.nextSend)
		if err := s.link.Write(ctx, protocol.DataFrame(uint8(w.nextSend), chunk)); err != nil {
			return fmt.Errorf("send frame %d: %w", w.nextSend, err)
		}
		if len(chunk) == 0 {
			w.terminal = w.nextSend + 1
		}
		s.stats.Frames++
		if w.nextSend < w.sent {
			s.stats.Retransmits++
		}
		w.nextSend++
		w.sent = max(w.sent, w.nextSend)
	}
	return nil
}

// await blocks for one acknowledgment of the oldest outstanding frame, or
// rewinds the window when cfg.AckTimeout expires first.
func (s *sender) await(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-s.in:
			if !ok {
				return link.ErrClosed
			}
			seq, ok := parseAck(raw)
			if !ok {
				s.stats.Ignored++
				continue
			}
			s.stats.Acks++
			if !s.win.ack(seq) {
				s.stats.Ignored++
				continue
			}
			n := len(s.chunk(s.win.nextAck - 1))
			s.stats.Bytes += n
			s.timeouts = 0
			s.opts.report(n)
			return nil

		case <-timer.C:
			s.timeouts++
			s.stats.Rewinds++
			s.opts.log.Debug(ctx, "ack timeout, rewinding",
				"next_ack", s.win.nextAck, "next_send", s.win.nextSend, "timeouts", s.timeouts)
			s.win.rewind()
			if s.cfg.UploadMaxTimeouts > 0 && s.timeouts >= s.cfg.UploadMaxTimeouts {
				return fmt.Errorf("%w: frame %d after %d timeouts", ErrRetriesExhausted, s.win.nextAck, s.timeouts)
			}
			return nil
		}
	}
}

func parseAck(raw []byte) (uint8, bool) {
	f, err := protocol.Decode(raw)
	if err != nil || f.Op != protocol.OpFileAck {
		return 0, false
	}
	seq, err := protocol.ParseAck(f.Payload)
	if err != nil {
		return 0, false
	}
	return seq, true
}
