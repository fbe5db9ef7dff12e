package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/peak/s5nav/command"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := command.Main(ctx, os.Args)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
