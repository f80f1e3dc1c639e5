package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/blefs/internal/buildinfo"
	"github.com/dmitrijs2005/blefs/internal/client/cli"
	"github.com/dmitrijs2005/blefs/internal/client/config"
)

func main() {
	cfg, args := config.LoadConfig(os.Args[1:])

	if len(args) == 1 && args[0] == "version" {
		buildinfo.PrintBuildData(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, closeDB, err := cli.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	code := app.Run(ctx, args)
	closeDB()
	stop()
	os.Exit(code)
}
