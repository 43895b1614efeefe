// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/loomd/main.go
// Summary: Headless session daemon: shell, interpreter and shared region.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"loom/config"
	"loom/internal/daemon"
)

func main() {
	session := flag.String("session", "default", "session name")
	configPath := flag.String("config", "", "settings file (default: user config dir)")
	flag.Parse()

	log.SetPrefix("loomd: ")
	log.SetFlags(log.LstdFlags)

	var settings config.Settings
	var err error
	if *configPath != "" {
		settings, err = config.LoadFile(*configPath)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	pidPath := config.PidPath(*session)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		log.Printf("write pid file: %v", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.New(*session, settings).Run(ctx); err != nil {
		log.Fatalf("session %s: %v", *session, err)
	}
}
