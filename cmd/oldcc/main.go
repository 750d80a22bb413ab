package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	// Cancelling on SIGINT/SIGTERM lets an in-flight compile tear down its container.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(newCLI()).ExecuteContext(ctx)
	if err == nil {
		return
	}

	// already reported by the command
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		stop()
		os.Exit(exitErr.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	stop()
	os.Exit(1)
}
