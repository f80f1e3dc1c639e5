package bluez

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/logging"
	"github.com/godbus/dbus/v5"
)

// Scanner runs LE discovery on a local adapter.
type Scanner struct {
	Adapter string
	Log     logging.Logger
}

var _ link.Scanner = (*Scanner)(nil)

// Scan discovers devices for window and returns what BlueZ saw, strongest
// signal first. Cancelling ctx ends the scan early.
func (s *Scanner) Scan(ctx context.Context, window time.Duration) ([]link.Device, error) {
	log := s.Log
	if log == nil {
		log = logging.NewNop()
	}

	bus, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	defer bus.Close()

	objs, err := getManagedObjects(bus)
	if err != nil {
		return nil, err
	}
	path, err := findAdapter(objs, s.Adapter)
	if err != nil {
		return nil, err
	}
	adapter := bus.Object(busName, path)

	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("le")}
	if err := adapter.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, filter).Store(); err != nil {
		log.Warn(ctx, "set discovery filter", "error", err)
	}
	if err := adapter.CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Store(); err != nil {
		return nil, fmt.Errorf("start discovery: %w", err)
	}
	log.Debug(ctx, "scanning", "adapter", path, "window", window)

	t := time.NewTimer(window)
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	t.Stop()

	if err := adapter.Call(adapterIface+".StopDiscovery", 0).Store(); err != nil {
		log.Warn(ctx, "stop discovery", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objs, err = getManagedObjects(bus)
	if err != nil {
		return nil, err
	}
	return devices(objs, path), nil
}
