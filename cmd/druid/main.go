package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/druid/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Main(ctx, flag.CommandLine, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
