package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

const prompt = "blefs> "

// Shell runs the interactive loop on the App's input until EOF, exit, or
// cancellation of ctx.
func (a *App) Shell(ctx context.Context) {
	echo := func(args ...any) { fmt.Fprintln(a.out, args...) }
	runREPL(ctx, a, echo, a.report, bufio.NewScanner(a.in))
}

// runREPL reads a line from scanner, splits it into fields and dispatches the
// command to a. Prompts and shell messages go to echo; command errors go
// to report and never end the loop. The loop exits on scanner EOF, on "exit"
// or "quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, echo func(...any), report func(error), scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		echo(prompt)
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "exit", "quit":
			echo("Bye!")
			return
		case "help":
			echo(usage)
		default:
			if err := dispatch(ctx, a, parts); err != nil {
				report(err)
			}
		}
	}
}
