// Package main starts the record store service and handles termination.
//
// The process hosts partitioned records over HTTP for queries and mutations
// and over WebSocket for live query snapshots.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	storecmd "github.com/myunifiles/unifiles/internal/cmd/store"
)

func main() {
	cfg, err := storecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[STORE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := storecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
