// Package bluez implements link.Link on top of the BlueZ D-Bus API.
//
// The device exposes a command characteristic the host writes frames to and a
// notify characteristic it sends frames back on. Both are located by UUID
// from the BlueZ object tree.
package bluez

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/godbus/dbus/v5"
)

const (
	busName = "org.bluez"

	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	charIface       = "org.bluez.GattCharacteristic1"
	propertiesIface = "org.freedesktop.DBus.Properties"
	objectManager   = "org.freedesktop.DBus.ObjectManager"
)

// Characteristic UUIDs of the file transfer service.
const (
	CommandUUID = "00000002-8e22-4541-9d4c-21edae82ed19"
	NotifyUUID  = "00000001-8e22-4541-9d4c-21edae82ed19"
)

// attHeader is the part of the ATT MTU not available to a notification value.
const attHeader = 3

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func getManagedObjects(bus *dbus.Conn) (managedObjects, error) {
	var objs managedObjects
	err := bus.Object(busName, "/").Call(objectManager+".GetManagedObjects", 0).Store(&objs)
	if err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return objs, nil
}

// findAdapter returns the adapter called name (e.g. "hci0"), or the first
// adapter in path order when name is empty.
func findAdapter(objs managedObjects, name string) (dbus.ObjectPath, error) {
	var paths []string
	for p, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			paths = append(paths, string(p))
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		if name == "" || strings.HasSuffix(p, "/"+name) {
			return dbus.ObjectPath(p), nil
		}
	}
	if name == "" {
		return "", fmt.Errorf("bluetooth adapter: %w", link.ErrNotFound)
	}
	return "", fmt.Errorf("bluetooth adapter %s: %w", name, link.ErrNotFound)
}

// findDevice returns the object path of the device with the given address
// known to adapter.
func findDevice(objs managedObjects, adapter dbus.ObjectPath, address string) (dbus.ObjectPath, error) {
	for p, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if a, _ := props["Adapter"].Value().(dbus.ObjectPath); a != adapter {
			continue
		}
		if addr, _ := props["Address"].Value().(string); strings.EqualFold(addr, address) {
			return p, nil
		}
	}
	return "", fmt.Errorf("device %s: %w", address, link.ErrNotFound)
}

// findCharacteristics locates the command and notify characteristics below
// the device object.
func findCharacteristics(objs managedObjects, device dbus.ObjectPath) (cmd, notify dbus.ObjectPath, err error) {
	prefix := string(device) + "/"
	for p, ifaces := range objs {
		props, ok := ifaces[charIface]
		if !ok || !strings.HasPrefix(string(p), prefix) {
			continue
		}
		uuid, _ := props["UUID"].Value().(string)
		switch strings.ToLower(uuid) {
		case CommandUUID:
			cmd = p
		case NotifyUUID:
			notify = p
		}
	}
	if cmd == "" || notify == "" {
		return "", "", fmt.Errorf("file transfer characteristics on %s: %w", device, link.ErrNotFound)
	}
	return cmd, notify, nil
}

// payloadMTU derives the largest frame from the characteristic's ATT MTU,
// falling back to link.DefaultMTU when BlueZ does not report one.
func payloadMTU(objs managedObjects, char dbus.ObjectPath) int {
	if v, ok := objs[char][charIface]["MTU"]; ok {
		if mtu, ok := v.Value().(uint16); ok && int(mtu) > attHeader {
			return int(mtu) - attHeader
		}
	}
	return link.DefaultMTU
}

// devices lists the devices known to adapter that were seen during the last
// discovery, strongest signal first.
func devices(objs managedObjects, adapter dbus.ObjectPath) []link.Device {
	var out []link.Device
	for _, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if a, _ := props["Adapter"].Value().(dbus.ObjectPath); a != adapter {
			continue
		}
		rssi, seen := props["RSSI"].Value().(int16)
		if !seen {
			continue
		}
		d := link.Device{RSSI: rssi}
		d.Address, _ = props["Address"].Value().(string)
		d.Name, _ = props["Name"].Value().(string)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// notification extracts the new value from a PropertiesChanged signal
// emitted by the characteristic at path.
func notification(sig *dbus.Signal, path dbus.ObjectPath) ([]byte, bool) {
	if sig == nil || sig.Path != path || sig.Name != propertiesIface+".PropertiesChanged" {
		return nil, false
	}
	if len(sig.Body) < 2 {
		return nil, false
	}
	if iface, _ := sig.Body[0].(string); iface != charIface {
		return nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, false
	}
	v, ok := changed["Value"]
	if !ok {
		return nil, false
	}
	b, ok := v.Value().([]byte)
	return b, ok
}

func matchRule(path dbus.ObjectPath) string {
	return fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged',path='%s',arg0='%s'",
		propertiesIface, path, charIface)
}
