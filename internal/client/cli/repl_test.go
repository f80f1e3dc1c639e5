package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/blefs/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	calls []string
	read  transfer.ReadRequest
	local string
}

func (f *fakeExec) note(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return nil
}

func (f *fakeExec) Scan(ctx context.Context) error {
	return f.note("scan")
}

func (f *fakeExec) List(ctx context.Context, dir string) error {
	return f.note("ls %s", dir)
}

func (f *fakeExec) Read(ctx context.Context, req transfer.ReadRequest, local string) error {
	f.read, f.local = req, local
	return f.note("read %s", req.Path)
}

func (f *fakeExec) Write(ctx context.Context, local, remote string) error {
	return f.note("write %s %s", local, remote)
}

func (f *fakeExec) Create(ctx context.Context, name string) error {
	return f.note("create %s", name)
}

func (f *fakeExec) Delete(ctx context.Context, name string) error {
	return f.note("rm %s", name)
}

func (f *fakeExec) Mkdir(ctx context.Context, name string) error {
	return f.note("mkdir %s", name)
}

func (f *fakeExec) History(ctx context.Context) error {
	return f.note("history")
}

// printed collects the lines runREPL prints.
type printed []string

func (p *printed) echo(a ...any) { *p = append(*p, fmt.Sprint(a...)) }

func TestRunREPL_Commands(t *testing.T) {
	var lines printed

	input := strings.NewReader(strings.Join([]string{
		"help",
		"",
		"scan",
		"ls /",
		"read 0 0 /logs/a.txt",
		"write a.bin /a.bin",
		"mkdir",
		"bogus",
		"history",
		"exit",
		"ls /never",
	}, "\n"))

	exec := &fakeExec{}
	var reported []error
	runREPL(context.Background(), exec, lines.echo, func(err error) { reported = append(reported, err) }, bufio.NewScanner(input))

	assert.Equal(t, []string{"scan", "ls /", "read /logs/a.txt", "write a.bin /a.bin", "history"}, exec.calls)
	require.Len(t, reported, 2)
	for _, err := range reported {
		assert.ErrorIs(t, err, ErrUsage)
	}
	assert.Contains(t, lines, usage)
	assert.Equal(t, "Bye!", lines[len(lines)-1])
}

func TestRunREPL_EOF(t *testing.T) {
	var lines printed
	exec := &fakeExec{}
	runREPL(context.Background(), exec, lines.echo, func(error) {}, bufio.NewScanner(strings.NewReader("rm /x")))
	assert.Equal(t, []string{"rm /x"}, exec.calls)
}

func TestRunREPL_CancelledContext(t *testing.T) {
	var lines printed
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{}
	runREPL(ctx, exec, lines.echo, func(error) {}, bufio.NewScanner(strings.NewReader("scan\n")))
	assert.Empty(t, exec.calls)
	assert.Empty(t, lines)
}

func TestDispatch_Read(t *testing.T) {
	ctx := context.Background()

	exec := &fakeExec{}
	require.NoError(t, dispatch(ctx, exec, []string{"read", "2", "3", "/logs/x.bin"}))
	assert.Equal(t, transfer.ReadRequest{Offset: 2, Stride: 3, Path: "/logs/x.bin"}, exec.read)
	assert.Equal(t, "x.bin", exec.local)

	require.NoError(t, dispatch(ctx, exec, []string{"read", "0", "0", "/logs/x.bin", "out.bin"}))
	assert.Equal(t, "out.bin", exec.local)
}

func TestDispatch_Usage(t *testing.T) {
	cases := [][]string{
		{"read", "x", "0", "/a"},
		{"read", "0", "-1", "/a"},
		{"read", "0", "0"},
		{"ls"},
		{"write", "a"},
		{"create", "a", "b"},
		{"rm"},
		{"help"},
		{"nope"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			exec := &fakeExec{}
			err := dispatch(context.Background(), exec, args)
			assert.ErrorIs(t, err, ErrUsage)
			assert.Empty(t, exec.calls)
		})
	}
}
