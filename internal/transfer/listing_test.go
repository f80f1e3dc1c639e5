package transfer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/link/memlink"
	"github.com/dmitrijs2005/blefs/internal/logging"
	"github.com/dmitrijs2005/blefs/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLink answers the first write with a fixed set of notifications.
type scriptedLink struct {
	mu           sync.Mutex
	replies      [][]byte
	in           chan []byte
	writes       [][]byte
	unsubscribed int
	writeErr     error
	unsubErr     error
}

func newScriptedLink(replies ...[]byte) *scriptedLink {
	return &scriptedLink{replies: replies, in: make(chan []byte, len(replies)+1)}
}

func (s *scriptedLink) Write(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, frame)
	if len(s.writes) == 1 {
		for _, r := range s.replies {
			s.in <- r
		}
	}
	return nil
}

func (s *scriptedLink) Subscribe(ctx context.Context) (<-chan []byte, error) { return s.in, nil }

func (s *scriptedLink) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed++
	return s.unsubErr
}

func (s *scriptedLink) MTU() int     { return link.DefaultMTU }
func (s *scriptedLink) Close() error { return nil }

func shortList() Config {
	cfg := DefaultConfig()
	cfg.ListWindow = 100 * time.Millisecond
	return cfg
}

func entryFrame(t *testing.T, e protocol.DirEntry) []byte {
	t.Helper()
	rec, err := protocol.EncodeDirEntry(e)
	require.NoError(t, err)
	return protocol.InfoFrame(rec)
}

func TestListDirectory_FromDevice(t *testing.T) {
	d := memlink.NewDevice(testAddr)
	d.PutFile("/log/B.CSV", make([]byte, 300))
	d.PutFile("/log/A.CSV", make([]byte, 12))
	d.PutFile("/other.txt", nil)
	l := dial(t, d)

	var seen []string
	entries, err := ListDirectory(context.Background(), l, shortList(), "/log",
		WithEntry(func(e protocol.DirEntry) { seen = append(seen, e.Name) }))
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "A.CSV", entries[0].Name)
	assert.Equal(t, uint32(12), entries[0].Size)
	assert.Equal(t, "---a-", entries[0].Attr.String())
	assert.Equal(t, "B.CSV", entries[1].Name)
	assert.Equal(t, []string{"A.CSV", "B.CSV"}, seen)

	assert.Equal(t, protocol.NameCommand(protocol.OpListDir, "/log"), d.Received()[0])
}

func TestListDirectory_FullWidthName(t *testing.T) {
	d := memlink.NewDevice(testAddr)
	d.PutFile("/log/ABCDEFGH.TXTX", make([]byte, 7))
	l := dial(t, d)

	entries, err := ListDirectory(context.Background(), l, shortList(), "/log")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ABCDEFGH.TXTX", entries[0].Name)
	assert.Equal(t, uint32(7), entries[0].Size)
}

func TestListDirectory_DuplicatesPassThrough(t *testing.T) {
	d := memlink.NewDevice(testAddr)
	d.PutFile("/A", nil)
	d.Faults.ListRepeat = 2
	l := dial(t, d)

	entries, err := ListDirectory(context.Background(), l, shortList(), "/")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestListDirectory_RunsForFullWindow(t *testing.T) {
	d := memlink.NewDevice(testAddr)
	l := dial(t, d)

	cfg := DefaultConfig()
	cfg.ListWindow = 150 * time.Millisecond

	start := time.Now()
	entries, err := ListDirectory(context.Background(), l, cfg, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.GreaterOrEqual(t, time.Since(start), cfg.ListWindow)
}

func TestListDirectory_SkipsJunk(t *testing.T) {
	good := protocol.DirEntry{Size: 7, Year: 2022, Month: 3, Day: 4, Hour: 5, Minute: 6, Second: 8, Name: "OK.TXT"}
	var empty [protocol.DirEntrySize]byte
	l := newScriptedLink(
		protocol.AckFrame(1),
		protocol.Encode(protocol.OpFileInfo, []byte{1, 2, 3}),
		protocol.InfoFrame(empty),
		nil,
		entryFrame(t, good),
		protocol.DataFrame(0, []byte("x")),
	)

	entries, err := ListDirectory(context.Background(), l, shortList(), "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, good, entries[0])
	assert.Equal(t, 1, l.unsubscribed)
}

func TestListDirectory_UnsubscribesOnCancel(t *testing.T) {
	l := newScriptedLink()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ListDirectory(ctx, l, DefaultConfig(), "/")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.unsubscribed)
}

func TestListDirectory_WriteFailure(t *testing.T) {
	l := newScriptedLink()
	l.writeErr = errors.New("gatt write failed")

	_, err := ListDirectory(context.Background(), l, shortList(), "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gatt write failed")
	assert.Equal(t, 1, l.unsubscribed)
}

func TestListDirectory_WriteFailureLogsUnsubscribeError(t *testing.T) {
	l := newScriptedLink()
	l.writeErr = errors.New("gatt write failed")
	l.unsubErr = link.ErrNotSubscribed
	var buf bytes.Buffer

	_, err := ListDirectory(context.Background(), l, shortList(), "/", WithLogger(logging.New(&buf, false)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gatt write failed")
	assert.NotErrorIs(t, err, link.ErrNotSubscribed)
	assert.Equal(t, 1, l.unsubscribed)
	assert.Contains(t, buf.String(), "stop notifications")
}

func TestListDirectory_UnsubscribeErrorReported(t *testing.T) {
	l := newScriptedLink()
	l.unsubErr = link.ErrNotSubscribed

	_, err := ListDirectory(context.Background(), l, shortList(), "/")
	require.ErrorIs(t, err, link.ErrNotSubscribed)
}

func TestListDirectory_NameTooLong(t *testing.T) {
	l := newScriptedLink()
	long := make([]byte, link.DefaultMTU)
	for i := range long {
		long[i] = 'a'
	}

	_, err := ListDirectory(context.Background(), l, shortList(), string(long))
	require.ErrorIs(t, err, protocol.ErrFrameTooLarge)
	assert.Empty(t, l.writes)
}
