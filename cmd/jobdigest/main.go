// Package main is the entry point for the jobdigest CLI
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/jobdigest/internal/cli"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Deps{Version: version})
	stop()
	os.Exit(code)
}
