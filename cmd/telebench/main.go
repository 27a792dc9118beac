package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/telebench/telebench/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stopCh
		cancel()
	}()

	os.Exit(cli.Execute(ctx))
}
