// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Command a2actl talks to A2A agents from the command line.
//
// Usage:
//
//	a2actl --agent https://agent.example card
//	a2actl --agent ./agent.yaml send "book a table for two"
//	a2actl --agent https://agent.example watch t1 t2
//
// Flags may also be set in a2actl.yaml or as A2ACTL_* environment variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
