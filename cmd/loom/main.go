// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/loom/main.go
// Summary: Session CLI: start, stop, status, attach and history search.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loom/cmd/loom/lifecycle"
	"loom/config"
	"loom/internal/client"
	"loom/internal/history"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: loom <command> [flags]

commands:
  attach   start the session daemon if needed and attach to it
  start    start the session daemon in the background
  stop     stop the session daemon
  status   report the session daemon state
  search   search recorded session output
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	session := fs.String("session", "default", "session name")
	query := fs.String("query", "", "search query (search command)")
	limit := fs.Int("limit", 20, "maximum search results")
	_ = fs.Parse(args)

	settings, err := config.Load()
	if err != nil {
		fatal("load settings: %v", err)
	}

	sup := newSupervisor(*session)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "attach":
		result, err := sup.EnsureRunning(ctx, daemonOptions(*session))
		if err != nil {
			fatal("%v", err)
		}
		if result.WasStarted {
			fmt.Printf("started session %q (pid %d)\n", *session, result.PID)
		}
		c, err := client.Attach(client.Options{
			SocketPath: config.SocketPath(*session),
			ClientName: "loom",
		})
		if err != nil {
			fatal("attach: %v", err)
		}
		defer c.Close()
		poll := time.Duration(settings.PollInterval) * time.Millisecond
		if err := client.RunUI(c, poll); err != nil {
			fatal("%v", err)
		}

	case "start":
		result, err := sup.EnsureRunning(ctx, daemonOptions(*session))
		if err != nil {
			fatal("%v", err)
		}
		if result.WasStarted {
			fmt.Printf("session %q started (pid %d)\n", *session, result.PID)
		} else {
			fmt.Printf("session %q already running (pid %d)\n", *session, result.PID)
		}

	case "stop":
		if err := sup.Stop(ctx); err != nil {
			fatal("stop: %v", err)
		}
		fmt.Printf("session %q stopped\n", *session)

	case "status":
		pidFile := lifecycle.NewPIDFile(config.PidPath(*session))
		manager := lifecycle.NewManager(pidFile, config.SocketPath(*session),
			lifecycle.NewPingHealthChecker(2*time.Second))
		state := manager.GetState(ctx)
		if pid := manager.GetPID(); pid > 0 {
			fmt.Printf("session %q: %s (pid %d)\n", *session, state, pid)
		} else {
			fmt.Printf("session %q: %s\n", *session, state)
		}

	case "search":
		if *query == "" {
			fatal("search requires -query")
		}
		if settings.HistoryPath == "" {
			fatal("history is not enabled; set history_path in loom.json")
		}
		store, err := history.Open(history.Config{Path: settings.HistoryPath})
		if err != nil {
			fatal("open history: %v", err)
		}
		defer store.Close()
		lines, err := store.Search(*session, *query, *limit)
		if err != nil {
			fatal("search: %v", err)
		}
		for _, l := range lines {
			fmt.Printf("%s  %s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.Content)
		}

	default:
		usage()
	}
}

func newSupervisor(session string) *lifecycle.Supervisor {
	pidFile := lifecycle.NewPIDFile(config.PidPath(session))
	health := lifecycle.NewPingHealthChecker(2 * time.Second)
	manager := lifecycle.NewManager(pidFile, config.SocketPath(session), health)
	return lifecycle.NewSupervisor(manager, health, pidFile)
}

func daemonOptions(session string) lifecycle.DaemonOptions {
	return lifecycle.DaemonOptions{
		Session:     session,
		LogFilePath: filepath.Join(os.TempDir(), "loomd-"+session+".log"),
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "loom: "+format+"\n", args...)
	os.Exit(1)
}
