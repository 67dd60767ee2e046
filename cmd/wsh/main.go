// Command wsh is an interactive shell for a warden server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
	)
	defer cancel()

	return newCLI(os.Stdout, os.Stderr).rootCmd().ExecuteContext(ctx)
}
