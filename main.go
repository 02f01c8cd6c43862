package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/room4-2/tutorvoice/cmd"
)

func main() {
	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
