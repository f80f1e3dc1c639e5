// Package memlink is an in-process link.Link wired to a simulated device.
// It exists for tests and local experiments; nothing here touches a radio.
package memlink

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/protocol"
)

const queueSize = 4096

// Conn is the host end of a simulated connection.
type Conn struct {
	dev  *Device
	mtu  int
	rx   chan request
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	notify chan []byte
	closed bool
}

// request is one host write. handled is closed once the device has
// processed the frame, which is when a write request completes on a radio.
type request struct {
	frame   []byte
	handled chan struct{}
}

var _ link.Link = (*Conn)(nil)

func newConn(d *Device, mtu int) *Conn {
	return &Conn{
		dev:  d,
		mtu:  mtu,
		rx:   make(chan request, queueSize),
		done: make(chan struct{}),
	}
}

func (c *Conn) MTU() int { return c.mtu }

// Write hands frame to the device and returns once the device has handled
// it. Frames are delivered in order and never lost.
func (c *Conn) Write(ctx context.Context, frame []byte) error {
	if err := protocol.CheckSize(frame, c.mtu); err != nil {
		return err
	}
	req := request{frame: append([]byte(nil), frame...), handled: make(chan struct{})}
	select {
	case <-c.done:
		return link.ErrClosed
	default:
	}
	select {
	case c.rx <- req:
	case <-c.done:
		return link.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.handled:
		return nil
	case <-c.done:
		return link.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Subscribe(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, link.ErrClosed
	}
	if c.notify == nil {
		c.notify = make(chan []byte, queueSize)
	}
	return c.notify, nil
}

func (c *Conn) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return link.ErrClosed
	}
	if c.notify == nil {
		return link.ErrNotSubscribed
	}
	close(c.notify)
	c.notify = nil
	return nil
}

func (c *Conn) Close() error {
	closed := false
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		if c.notify != nil {
			close(c.notify)
			c.notify = nil
		}
		c.mu.Unlock()
		closed = true
	})
	if !closed {
		return fmt.Errorf("close: %w", link.ErrClosed)
	}
	c.dev.closed()
	return nil
}

// deliver queues a notification for the host. It is dropped when
// notifications are off or the queue is full, like a radio would.
func (c *Conn) deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notify == nil {
		return false
	}
	select {
	case c.notify <- frame:
		return true
	default:
		return false
	}
}
