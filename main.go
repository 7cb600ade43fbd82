package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/buildinfo"
)

// Set through -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Interrupts cancel the running fit; chains stop at their next iteration.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.RootCommand(buildinfo.NewContext(version, buildDate)).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
