package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sketchpad/cmd"
	"sketchpad/internal/log"
	"sketchpad/pkg/build"
)

// main is the entry point for the sketchpad application.
//
//  1. Startup: stamp build information and install signal handling.
//  2. Run: the selected command owns the audio host, storage and UI.
//  3. Shutdown: a termination signal cancels the command context, the
//     command releases its devices and buffered logs are flushed.
func main() {
	if err := build.Initialize(); err != nil {
		if !errors.Is(err, build.ErrDevBuild) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		log.Debugf("Build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	_ = log.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
