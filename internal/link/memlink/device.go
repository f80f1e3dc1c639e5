package memlink

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/blefs/internal/link"
	"github.com/dmitrijs2005/blefs/internal/protocol"
)

// Faults perturb the simulated device. The zero value is a perfect device.
type Faults struct {
	// DropAck suppresses the acknowledgment the device would send for the
	// n-th (0-based) data frame it receives during an upload.
	DropAck func(seq uint8, n int) bool

	// DropNotify loses a notification before it reaches the host.
	DropNotify func(frame []byte) bool

	// SilentAfter makes the device stop sending data frames during a
	// download once it has sent this many. Zero disables it.
	SilentAfter int

	// DuplicateData sends every download data frame twice.
	DuplicateData bool

	// ListRepeat sends the directory listing this many extra times.
	ListRepeat int
}

// Sender tunes the device side of downloads.
type Sender struct {
	FrameLength  int
	WindowLength int
	AckTimeout   time.Duration
}

type file struct {
	data []byte
	attr protocol.Attributes
	mod  time.Time
}

// Device is a simulated remote filesystem speaking the device side of the
// protocol. It implements link.Dialer and link.Scanner.
type Device struct {
	Address string
	Name    string
	MTU     int
	Sender  Sender
	Faults  Faults
	// DialErr, when set, is returned by Dial.
	DialErr error
	// ModTime stamps entries created through the protocol.
	ModTime time.Time

	mu       sync.Mutex
	files    map[string]*file
	received [][]byte
	notified [][]byte
	acksSent []uint8
	dials    int
	closes   int
}

var (
	_ link.Dialer  = (*Device)(nil)
	_ link.Scanner = (*Device)(nil)
)

// NewDevice returns an empty device with the protocol defaults.
func NewDevice(address string) *Device {
	return &Device{
		Address: address,
		Name:    "FlySight",
		MTU:     link.DefaultMTU,
		Sender:  Sender{FrameLength: 242, WindowLength: 8, AckTimeout: 50 * time.Millisecond},
		ModTime: time.Date(2021, 6, 15, 14, 30, 0, 0, time.UTC),
		files:   map[string]*file{"/": {attr: protocol.AttrDirectory}},
	}
}

// Dial opens a new connection to the device.
func (d *Device) Dial(ctx context.Context, address string) (link.Link, error) {
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if address != d.Address {
		return nil, link.ErrNotFound
	}
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	c := newConn(d, d.MTU)
	go d.serve(c)
	return c, nil
}

// Scan reports the device itself.
func (d *Device) Scan(ctx context.Context, window time.Duration) ([]link.Device, error) {
	return []link.Device{{Address: d.Address, Name: d.Name, RSSI: -60}}, nil
}

// PutFile stores data at p.
func (d *Device) PutFile(p string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[clean(p)] = &file{data: append([]byte(nil), data...), attr: protocol.AttrArchive, mod: d.ModTime}
}

// File returns the content stored at p.
func (d *Device) File(p string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[clean(p)]
	if !ok || f.attr&protocol.AttrDirectory != 0 {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

// Exists reports whether a file or directory exists at p.
func (d *Device) Exists(p string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[clean(p)]
	return ok
}

// IsDir reports whether p is a directory.
func (d *Device) IsDir(p string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[clean(p)]
	return ok && f.attr&protocol.AttrDirectory != 0
}

// Received returns every frame the host wrote, in order.
func (d *Device) Received() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.received...)
}

// Notified returns every notification that reached the host.
func (d *Device) Notified() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.notified...)
}

// AcksSent returns the sequence numbers the device acknowledged during
// uploads, including suppressed ones.
func (d *Device) AcksSent() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint8(nil), d.acksSent...)
}

// Dials and Closes count connections opened and released.
func (d *Device) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *Device) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *Device) closed() {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
}

func clean(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// session is the per-connection protocol state of the device.
type session struct {
	dev  *Device
	conn *Conn

	up   *upload
	down *download

	timer  *time.Timer
	timerC <-chan time.Time
}

type upload struct {
	path         string
	nextExpected int
	received     int
	buf          []byte
	done         bool
}

type download struct {
	blocks   [][]byte // last block is the empty terminal frame
	nextSend int
	nextAck  int
	sent     int
}

func (d *Device) serve(c *Conn) {
	s := &session{dev: d, conn: c}
	defer s.stopTimer()

	for {
		select {
		case <-c.done:
			return
		case req := <-c.rx:
			d.mu.Lock()
			d.received = append(d.received, req.frame)
			d.mu.Unlock()
			s.handle(req.frame)
			close(req.handled)
		case <-s.timerC:
			s.timerC = nil
			if s.down != nil {
				s.down.nextSend = s.down.nextAck
				s.fill()
			}
		}
	}
}

func (s *session) handle(raw []byte) {
	f, err := protocol.Decode(raw)
	if err != nil {
		return
	}
	d := s.dev
	name := clean(string(f.Payload))

	switch f.Op {
	case protocol.OpCreateFile:
		d.mu.Lock()
		if _, ok := d.files[name]; !ok {
			d.files[name] = &file{attr: protocol.AttrArchive, mod: d.ModTime}
		}
		d.mu.Unlock()

	case protocol.OpDeleteFile:
		d.mu.Lock()
		delete(d.files, name)
		d.mu.Unlock()

	case protocol.OpMkdir:
		d.mu.Lock()
		d.files[name] = &file{attr: protocol.AttrDirectory, mod: d.ModTime}
		d.mu.Unlock()

	case protocol.OpListDir:
		s.list(name)

	case protocol.OpWriteFile:
		s.up = &upload{path: name}

	case protocol.OpFileData:
		s.receive(f.Payload)

	case protocol.OpReadFile:
		off, stride, p, err := protocol.ParseReadRequest(f.Payload)
		if err != nil {
			return
		}
		s.startDownload(clean(p), off, stride)

	case protocol.OpFileAck:
		s.acked(f.Payload)
	}
}

func (s *session) notify(frame []byte) {
	d := s.dev
	if d.Faults.DropNotify != nil && d.Faults.DropNotify(frame) {
		return
	}
	if s.conn.deliver(frame) {
		d.mu.Lock()
		d.notified = append(d.notified, frame)
		d.mu.Unlock()
	}
}

func (s *session) list(dir string) {
	d := s.dev
	d.mu.Lock()
	var names []string
	for p := range d.files {
		if p != "/" && path.Dir(p) == dir {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	var frames [][]byte
	for _, p := range names {
		f := d.files[p]
		m := f.mod
		rec, err := protocol.EncodeDirEntry(protocol.DirEntry{
			Size: uint32(len(f.data)),
			Year: m.Year(), Month: int(m.Month()), Day: m.Day(),
			Hour: m.Hour(), Minute: m.Minute(), Second: m.Second() &^ 1,
			Attr: f.attr,
			Name: path.Base(p),
		})
		if err != nil {
			continue
		}
		frames = append(frames, protocol.InfoFrame(rec))
	}
	d.mu.Unlock()

	var end [protocol.DirEntrySize]byte
	for range 1 + d.Faults.ListRepeat {
		for _, fr := range frames {
			s.notify(fr)
		}
		s.notify(protocol.InfoFrame(end))
	}
}

// receive is the device half of an upload: every data frame is
// acknowledged, only the next expected one is kept.
func (s *session) receive(payload []byte) {
	u := s.up
	if u == nil {
		return
	}
	seq, chunk, err := protocol.ParseData(payload)
	if err != nil {
		return
	}
	n := u.received
	u.received++

	if !u.done && seq == uint8(u.nextExpected) {
		u.nextExpected++
		if len(chunk) == 0 {
			u.done = true
			d := s.dev
			d.mu.Lock()
			d.files[u.path] = &file{data: u.buf, attr: protocol.AttrArchive, mod: d.ModTime}
			d.mu.Unlock()
		} else {
			u.buf = append(u.buf, chunk...)
		}
	}

	d := s.dev
	d.mu.Lock()
	d.acksSent = append(d.acksSent, seq)
	d.mu.Unlock()
	if d.Faults.DropAck != nil && d.Faults.DropAck(seq, n) {
		return
	}
	s.notify(protocol.AckFrame(seq))
}

// startDownload splits the file into blocks starting at block offset and
// skipping stride blocks after each one sent.
func (s *session) startDownload(p string, offset, stride uint32) {
	d := s.dev
	fl := d.Sender.FrameLength
	d.mu.Lock()
	f, ok := d.files[p]
	var data []byte
	if ok {
		data = f.data
	}
	d.mu.Unlock()

	var blocks [][]byte
	for i := int(offset); i*fl < len(data); i += int(stride) + 1 {
		blocks = append(blocks, data[i*fl:min((i+1)*fl, len(data))])
	}
	blocks = append(blocks, nil)

	s.down = &download{blocks: blocks}
	s.fill()
}

func (s *session) fill() {
	dl := s.down
	d := s.dev
	for dl.nextSend < len(dl.blocks) && dl.nextSend < dl.nextAck+d.Sender.WindowLength {
		if d.Faults.SilentAfter > 0 && dl.sent >= d.Faults.SilentAfter {
			break
		}
		frame := protocol.DataFrame(uint8(dl.nextSend), dl.blocks[dl.nextSend])
		s.notify(frame)
		if d.Faults.DuplicateData {
			s.notify(frame)
		}
		dl.nextSend++
		dl.sent++
	}
	s.armTimer()
}

func (s *session) acked(payload []byte) {
	dl := s.down
	if dl == nil {
		return
	}
	seq, err := protocol.ParseAck(payload)
	if err != nil || dl.nextAck >= dl.nextSend || seq != uint8(dl.nextAck) {
		return
	}
	dl.nextAck++
	if dl.nextAck == len(dl.blocks) {
		s.down = nil
		s.stopTimer()
		return
	}
	s.fill()
}

func (s *session) armTimer() {
	s.stopTimer()
	s.timer = time.NewTimer(s.dev.Sender.AckTimeout)
	s.timerC = s.timer.C
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerC = nil
}
