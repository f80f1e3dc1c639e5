package transfer

import (
	"context"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/logging"
	"github.com/dmitrijs2005/blefs/internal/protocol"
)

// Option customizes a single engine run.
type Option func(*options)

type options struct {
	log      logging.Logger
	progress func(n int)
	entry    func(e protocol.DirEntry)
}

// WithLogger routes engine diagnostics to l.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithProgress registers fn to be called with the number of file bytes each
// time a data frame is confirmed (Upload) or accepted (Download).
func WithProgress(fn func(n int)) Option {
	return func(o *options) { o.progress = fn }
}

// WithEntry registers fn to be called for every entry as ListDirectory
// collects it.
func WithEntry(fn func(e protocol.DirEntry)) Option {
	return func(o *options) { o.entry = fn }
}

func newOptions(opts []Option) *options {
	o := &options{log: logging.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) report(n int) {
	if o.progress != nil && n > 0 {
		o.progress(n)
	}
}

// Stats summarizes one engine run.
type Stats struct {
	Frames      int // data frames sent (Upload) or accepted (Download)
	Retransmits int // data frames sent again after a rewind
	Rewinds     int // acknowledgment timeouts (Upload)
	Timeouts    int // packet timeouts survived (Download)
	Acks        int // acknowledgments received (Upload) or sent (Download)
	Ignored     int // frames dropped as stale, out of order or malformed
	Dropped     int // frames discarded by fault injection
	Bytes       int // file bytes confirmed
}

// subscribe enables notifications and returns a cleanup that disables them
// even if ctx has been cancelled by then. The cleanup logs a failure and
// also returns it for callers that report it.
func subscribe(ctx context.Context, l link.Link, log logging.Logger) (<-chan []byte, func() error, error) {
	in, err := l.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}
	return in, func() error {
		err := l.Unsubscribe(context.WithoutCancel(ctx))
		if err != nil {
			log.Warn(ctx, "stop notifications", "error", err)
		}
		return err
	}, nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	t.Stop()
	t.Reset(d)
}
