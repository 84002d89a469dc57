// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// ehrsync is the offline-first command-line client for the EHR record store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Blaqmann/ehr-system/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
