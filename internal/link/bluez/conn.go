package bluez

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/logging"
	"github.com/godbus/dbus/v5"
)

// notifyBuffer is how many notifications may queue up before the consumer
// falls behind and frames are dropped.
const notifyBuffer = 1024

// Dialer connects to devices through a local BlueZ adapter.
type Dialer struct {
	// Adapter names the controller, e.g. "hci0". Empty picks the first one.
	Adapter string
	// ResolveTimeout bounds the wait for GATT service discovery after connect.
	ResolveTimeout time.Duration
	Log            logging.Logger
}

var _ link.Dialer = (*Dialer)(nil)

// Dial connects to the device with the given address. The device must be
// known to BlueZ, typically from a previous scan.
func (d *Dialer) Dial(ctx context.Context, address string) (link.Link, error) {
	log := d.Log
	if log == nil {
		log = logging.NewNop()
	}

	bus, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	c, err := d.open(ctx, bus, address, log)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return c, nil
}

func (d *Dialer) open(ctx context.Context, bus *dbus.Conn, address string, log logging.Logger) (*Conn, error) {
	objs, err := getManagedObjects(bus)
	if err != nil {
		return nil, err
	}
	adapter, err := findAdapter(objs, d.Adapter)
	if err != nil {
		return nil, err
	}
	devPath, err := findDevice(objs, adapter, address)
	if err != nil {
		return nil, err
	}

	dev := bus.Object(busName, devPath)
	log.Debug(ctx, "connecting", "device", devPath)
	if err := dev.CallWithContext(ctx, deviceIface+".Connect", 0).Store(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	timeout := d.ResolveTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := waitResolved(ctx, dev, timeout); err != nil {
		_ = dev.Call(deviceIface+".Disconnect", 0).Store()
		return nil, fmt.Errorf("resolve services of %s: %w", address, err)
	}

	// Characteristics only show up once services are resolved.
	objs, err = getManagedObjects(bus)
	if err != nil {
		_ = dev.Call(deviceIface+".Disconnect", 0).Store()
		return nil, err
	}
	cmd, notify, err := findCharacteristics(objs, devPath)
	if err != nil {
		_ = dev.Call(deviceIface+".Disconnect", 0).Store()
		return nil, err
	}

	c := &Conn{
		bus:    bus,
		dev:    dev,
		cmd:    bus.Object(busName, cmd),
		notify: bus.Object(busName, notify),
		mtu:    payloadMTU(objs, notify),
		log:    log.With("device", address),
	}
	log.Info(ctx, "connected", "device", address, "mtu", c.mtu)
	return c, nil
}

func waitResolved(ctx context.Context, dev dbus.BusObject, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		v, err := dev.GetProperty(deviceIface + ".ServicesResolved")
		if err != nil {
			return err
		}
		if resolved, _ := v.Value().(bool); resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Conn is a connected device. It owns its system bus connection.
type Conn struct {
	bus    *dbus.Conn
	dev    dbus.BusObject
	cmd    dbus.BusObject
	notify dbus.BusObject
	mtu    int
	log    logging.Logger

	mu     sync.Mutex
	sub    *subscription
	closed bool
}

type subscription struct {
	sigs chan *dbus.Signal
	out  chan []byte
	stop chan struct{}
	done chan struct{}
}

var _ link.Link = (*Conn)(nil)

// MTU returns the largest frame the connection carries.
func (c *Conn) MTU() int { return c.mtu }

// Write sends one frame to the command characteristic as a write request,
// so frames reach the device in order.
func (c *Conn) Write(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return link.ErrClosed
	}
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	if err := c.cmd.CallWithContext(ctx, charIface+".WriteValue", 0, frame, opts).Store(); err != nil {
		return fmt.Errorf("write value: %w", err)
	}
	return nil
}

// Subscribe starts notifications on the notify characteristic.
func (c *Conn) Subscribe(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, link.ErrClosed
	}
	if c.sub != nil {
		return c.sub.out, nil
	}

	path := c.notify.Path()
	if err := c.bus.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, matchRule(path)).Store(); err != nil {
		return nil, fmt.Errorf("add match: %w", err)
	}
	s := &subscription{
		sigs: make(chan *dbus.Signal, notifyBuffer),
		out:  make(chan []byte, notifyBuffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	c.bus.Signal(s.sigs)
	go c.pump(s, path)

	if err := c.notify.CallWithContext(ctx, charIface+".StartNotify", 0).Store(); err != nil {
		c.teardown(context.WithoutCancel(ctx), s)
		return nil, fmt.Errorf("start notify: %w", err)
	}
	c.sub = s
	return s.out, nil
}

// pump forwards notification values until the subscription stops. The
// consumer not keeping up loses frames; the protocol recovers from that.
func (c *Conn) pump(s *subscription, path dbus.ObjectPath) {
	defer close(s.done)
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case sig, open := <-s.sigs:
			if !open {
				return
			}
			v, ok := notification(sig, path)
			if !ok {
				continue
			}
			select {
			case s.out <- append([]byte(nil), v...):
			default:
				c.log.Warn(context.Background(), "notification queue full, dropping frame", "size", len(v))
			}
		}
	}
}

// Unsubscribe stops notifications and closes the channel returned by
// Subscribe.
func (c *Conn) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return link.ErrClosed
	}
	s := c.sub
	if s == nil {
		return link.ErrNotSubscribed
	}
	c.sub = nil

	err := c.notify.CallWithContext(ctx, charIface+".StopNotify", 0).Store()
	c.teardown(ctx, s)
	if err != nil {
		return fmt.Errorf("stop notify: %w", err)
	}
	return nil
}

func (c *Conn) teardown(ctx context.Context, s *subscription) {
	c.bus.RemoveSignal(s.sigs)
	close(s.stop)
	<-s.done
	_ = c.bus.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.RemoveMatch", 0, matchRule(c.notify.Path())).Store()
}

// Close stops notifications, disconnects the device and releases the bus.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return link.ErrClosed
	}
	c.closed = true

	ctx := context.Background()
	if s := c.sub; s != nil {
		c.sub = nil
		_ = c.notify.Call(charIface+".StopNotify", 0).Store()
		c.teardown(ctx, s)
	}

	var err error
	if derr := c.dev.Call(deviceIface+".Disconnect", 0).Store(); derr != nil {
		err = fmt.Errorf("disconnect: %w", derr)
	}
	if cerr := c.bus.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close bus: %w", cerr)
	}
	c.log.Debug(ctx, "disconnected")
	return err
}
