package transfer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/protocol"
)

// ReadRequest selects what Download asks the device for.
type ReadRequest struct {
	Offset uint32
	Stride uint32
	Path   string
}

// recvState is the reassembly state of one download. buf only grows, and
// only by the payload of the frame numbered nextExpected.
type recvState struct {
	nextExpected int
	buf          []byte
	complete     bool
}

// expects reports whether seq is the next frame in order.
func (r *recvState) expects(seq uint8) bool {
	return seq == uint8(r.nextExpected)
}

// accept records the in-order frame carrying chunk. An empty chunk ends the
// stream.
func (r *recvState) accept(chunk []byte) {
	if len(chunk) == 0 {
		r.complete = true
		return
	}
	r.buf = append(r.buf, chunk...)
	r.nextExpected++
}

type receiver struct {
	cfg   Config
	link  link.Link
	in    <-chan []byte
	state *recvState
	opts  *options
	rnd   *rand.Rand

	stats Stats
}

// Download reads the remote file described by req.
//
// Every frame that matches the next expected sequence number is
// acknowledged and appended; everything else is dropped silently so the
// device resends it. Each wait for a data frame is bounded by
// cfg.PacketTimeout. After cfg.DownloadMaxTimeouts consecutive expiries the
// download fails with ErrTimeout and whatever was received is discarded.
func Download(ctx context.Context, l link.Link, cfg Config, req ReadRequest, opts ...Option) ([]byte, Stats, error) {
	if err := cfg.Validate(l.MTU()); err != nil {
		return nil, Stats{}, err
	}
	o := newOptions(opts)

	cmd := protocol.ReadRequest(req.Offset, req.Stride, req.Path)
	if err := protocol.CheckSize(cmd, l.MTU()); err != nil {
		return nil, Stats{}, err
	}

	in, unsubscribe, err := subscribe(ctx, l, o.log)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("enable notifications: %w", err)
	}
	defer unsubscribe()

	if err := l.Write(ctx, cmd); err != nil {
		return nil, Stats{}, fmt.Errorf("begin read: %w", err)
	}

	r := &receiver{cfg: cfg, link: l, in: in, state: &recvState{}, opts: o}
	if cfg.DropRate > 0 {
		r.rnd = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}

	if err := r.run(ctx); err != nil {
		return nil, r.stats, err
	}
	return r.state.buf, r.stats, nil
}

func (r *receiver) run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.PacketTimeout)
	defer timer.Stop()

	timeouts := 0
	for !r.state.complete {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-r.in:
			if !ok {
				return link.ErrClosed
			}
			seq, chunk, ok := parseData(raw)
			if !ok {
				r.stats.Ignored++
				continue
			}
			resetTimer(timer, r.cfg.PacketTimeout)
			timeouts = 0

			if !r.state.expects(seq) {
				r.stats.Ignored++
				continue
			}
			if r.drop() {
				r.stats.Dropped++
				r.opts.log.Debug(ctx, "dropping frame", "seq", seq)
				continue
			}
			if err := r.link.Write(ctx, protocol.AckFrame(seq)); err != nil {
				return fmt.Errorf("ack frame %d: %w", r.state.nextExpected, err)
			}
			r.stats.Acks++
			r.state.accept(chunk)
			if len(chunk) > 0 {
				r.stats.Frames++
				r.stats.Bytes += len(chunk)
				r.opts.report(len(chunk))
			}

		case <-timer.C:
			timeouts++
			if r.cfg.DownloadMaxTimeouts > 0 && timeouts >= r.cfg.DownloadMaxTimeouts {
				r.opts.log.Warn(ctx, "download timed out",
					"next_expected", r.state.nextExpected, "discarded_bytes", len(r.state.buf))
				return fmt.Errorf("%w after %s at frame %d", ErrTimeout, r.cfg.PacketTimeout, r.state.nextExpected)
			}
			r.stats.Timeouts++
			// Repeat the last acknowledgment in case it was the one lost.
			if r.state.nextExpected > 0 {
				if err := r.link.Write(ctx, protocol.AckFrame(uint8(r.state.nextExpected-1))); err != nil {
					return fmt.Errorf("re-ack frame %d: %w", r.state.nextExpected-1, err)
				}
				r.stats.Acks++
			}
			timer.Reset(r.cfg.PacketTimeout)
		}
	}
	r.opts.log.Debug(ctx, "download complete",
		"frames", r.stats.Frames, "ignored", r.stats.Ignored, "bytes", r.stats.Bytes)
	return nil
}

func (r *receiver) drop() bool {
	return r.rnd != nil && r.rnd.Float64() < r.cfg.DropRate
}

func parseData(raw []byte) (uint8, []byte, bool) {
	f, err := protocol.Decode(raw)
	if err != nil || f.Op != protocol.OpFileData {
		return 0, nil, false
	}
	seq, chunk, err := protocol.ParseData(f.Payload)
	if err != nil {
		return 0, nil, false
	}
	return seq, chunk, true
}
