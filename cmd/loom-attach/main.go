// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/loom-attach/main.go
// Summary: Attaches the current terminal to a running loom session.

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"loom/config"
	"loom/internal/client"
)

func main() {
	session := flag.String("session", "default", "session name")
	flag.Parse()

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom-attach: load settings: %v\n", err)
		os.Exit(1)
	}

	c, err := client.Attach(client.Options{
		SocketPath: config.SocketPath(*session),
		ClientName: "loom-attach",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom-attach: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	poll := time.Duration(settings.PollInterval) * time.Millisecond
	if err := client.RunUI(c, poll); err != nil {
		fmt.Fprintf(os.Stderr, "loom-attach: %v\n", err)
		os.Exit(1)
	}
}
