package cli

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/term"
)

// isTerminal is a test seam for terminal detection.
var isTerminal = term.IsTerminal

// progress draws a single status line for a running transfer. It draws
// nothing when the output is not a terminal.
type progress struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	total int
	n     int
	shown bool
}

func (a *App) newProgress(label string, total int) *progress {
	p := &progress{label: label, total: total}
	if a.errFd >= 0 && isTerminal(a.errFd) {
		p.w = a.err
	}
	return p
}

func (p *progress) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n += n
	if p.w == nil {
		return
	}
	p.shown = true
	if p.total > 0 {
		fmt.Fprintf(p.w, "\r%s: %d/%d bytes (%d%%)", p.label, p.n, p.total, p.n*100/p.total)
		return
	}
	fmt.Fprintf(p.w, "\r%s: %d bytes", p.label, p.n)
}

// done ends the status line if one was drawn.
func (p *progress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown {
		fmt.Fprintln(p.w)
	}
}
