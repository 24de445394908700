// Package store parses store command flags and composes the record store
// server entrypoint.
package store

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/myunifiles/unifiles/internal/platform/cmd"
	server "github.com/myunifiles/unifiles/internal/store/app"
	"github.com/myunifiles/unifiles/internal/store/sqlite"
)

// Config holds store command configuration.
type Config struct {
	HTTPAddr string `env:"UNIFILES_STORE_HTTP_ADDR" envDefault:":8090"`
	DBPath   string `env:"UNIFILES_STORE_DB"        envDefault:"unifiles.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "store HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the backing database and serves the record store until the
// context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStore, func(context.Context) error {
		backend, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store database: %w", err)
		}
		defer func() {
			if err := backend.Close(); err != nil {
				log.Printf("close store database: %v", err)
			}
		}()

		if err := server.Run(ctx, server.Config{HTTPAddr: cfg.HTTPAddr}, backend); err != nil {
			return fmt.Errorf("serve store: %w", err)
		}
		return nil
	})
}
