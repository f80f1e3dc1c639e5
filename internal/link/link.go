// Package link defines the packet channel the transfer engines run on: a
// best-effort command write path and a stream of inbound notifications.
//
// Implementations live in subpackages: bluez talks to a real device through
// BlueZ over D-Bus, memlink connects the engines to a simulated device in
// tests.
package link

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("link closed")
	ErrNotFound      = errors.New("device not found")
	ErrNotSubscribed = errors.New("notifications not enabled")
)

// DefaultMTU is the largest frame the CRS characteristics accept with the
// default ATT MTU negotiated by the device.
const DefaultMTU = 244

// Link is one connection to a device.
//
// Write is ordered: frames reach the device in the order they were written.
// Notifications are not; they may be lost and must be resequenced by the
// caller.
type Link interface {
	// Write sends one frame on the command characteristic.
	Write(ctx context.Context, frame []byte) error

	// Subscribe enables notifications and returns the inbound frame queue.
	// The channel stays open until Unsubscribe or Close.
	Subscribe(ctx context.Context) (<-chan []byte, error)

	// Unsubscribe disables notifications and closes the queue returned by
	// Subscribe.
	Unsubscribe(ctx context.Context) error

	// MTU is the largest frame Write accepts. Zero means unknown.
	MTU() int

	Close() error
}

// Dialer opens links to devices by address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}

// Device is a discovered peripheral.
type Device struct {
	Address string
	Name    string
	RSSI    int16
}

// Scanner discovers nearby devices.
type Scanner interface {
	Scan(ctx context.Context, window time.Duration) ([]Device, error)
}
