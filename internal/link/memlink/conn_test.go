package memlink

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "C0:FF:EE:00:00:01"

func dial(t *testing.T, d *Device) link.Link {
	t.Helper()
	l, err := d.Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestDial(t *testing.T) {
	d := NewDevice(addr)

	_, err := d.Dial(context.Background(), "00:00:00:00:00:00")
	assert.ErrorIs(t, err, link.ErrNotFound)

	boom := errors.New("adapter off")
	d.DialErr = boom
	_, err = d.Dial(context.Background(), addr)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, d.Dials())
}

func TestConn_Lifecycle(t *testing.T) {
	d := NewDevice(addr)
	l, err := d.Dial(context.Background(), addr)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, link.DefaultMTU, l.MTU())
	assert.ErrorIs(t, l.Unsubscribe(ctx), link.ErrNotSubscribed)

	in, err := l.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Unsubscribe(ctx))
	_, open := <-in
	assert.False(t, open, "unsubscribe closes the channel")

	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Close(), link.ErrClosed)
	assert.ErrorIs(t, l.Write(ctx, []byte{0x00}), link.ErrClosed)
	_, err = l.Subscribe(ctx)
	assert.ErrorIs(t, err, link.ErrClosed)

	assert.Equal(t, 1, d.Dials())
	assert.Equal(t, 1, d.Closes())
}

func TestConn_WriteTooLarge(t *testing.T) {
	d := NewDevice(addr)
	d.MTU = 20
	l := dial(t, d)

	err := l.Write(context.Background(), make([]byte, 21))
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
	assert.Empty(t, d.Received())
}

func TestDevice_Commands(t *testing.T) {
	d := NewDevice(addr)
	l := dial(t, d)
	ctx := context.Background()

	require.NoError(t, l.Write(ctx, protocol.NameCommand(protocol.OpMkdir, "logs")))
	require.NoError(t, l.Write(ctx, protocol.NameCommand(protocol.OpCreateFile, "/logs/a.csv")))
	assert.True(t, d.IsDir("/logs"))
	data, ok := d.File("/logs/a.csv")
	require.True(t, ok)
	assert.Empty(t, data)

	d.PutFile("/logs/a.csv", []byte("x"))
	require.NoError(t, l.Write(ctx, protocol.NameCommand(protocol.OpCreateFile, "/logs/a.csv")))
	data, _ = d.File("/logs/a.csv")
	assert.Equal(t, []byte("x"), data, "create keeps an existing file")

	require.NoError(t, l.Write(ctx, protocol.NameCommand(protocol.OpDeleteFile, "/logs/a.csv")))
	assert.False(t, d.Exists("/logs/a.csv"))
	assert.Len(t, d.Received(), 4)
}

func TestDevice_List(t *testing.T) {
	d := NewDevice(addr)
	d.PutFile("/B.TXT", []byte("bb"))
	d.PutFile("/A.TXT", nil)
	d.PutFile("/sub/C.TXT", nil)
	l := dial(t, d)
	ctx := context.Background()

	in, err := l.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Write(ctx, protocol.NameCommand(protocol.OpListDir, "/")))

	var names []string
	for range 3 {
		f, err := protocol.Decode(<-in)
		require.NoError(t, err)
		require.Equal(t, protocol.OpFileInfo, f.Op)
		e, ok, err := protocol.DecodeDirEntry(f.Payload)
		require.NoError(t, err)
		if !ok {
			names = append(names, "")
			continue
		}
		names = append(names, e.Name)
		assert.Equal(t, 2021, e.Year)
	}
	assert.Equal(t, []string{"A.TXT", "B.TXT", ""}, names)
	assert.Len(t, d.Notified(), 3)
}

func TestDevice_DropNotify(t *testing.T) {
	d := NewDevice(addr)
	d.Faults.DropNotify = func([]byte) bool { return true }
	l := dial(t, d)
	ctx := context.Background()

	in, err := l.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Write(ctx, protocol.NameCommand(protocol.OpListDir, "/")))
	assert.Empty(t, d.Notified())
	select {
	case <-in:
		t.Fatal("notification delivered despite fault")
	default:
	}
}
