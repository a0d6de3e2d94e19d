// Command triplit-cli is an interactive REPL over an in-process triplit.DB,
// grounded on the teacher's cmd/client but talking to the database
// in-process instead of over a TCP+TLS connection: triplit is an
// embeddable library, not a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/itoxiq/triplit"
	"github.com/itoxiq/triplit/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, colorInfo("no .env file found, using environment and defaults"))
	}

	walPath := flag.String("wal", "", "path to the write-ahead log file (overrides TRIPLIT_WAL_PATH)")
	clientID := flag.String("client-id", "", "this replica's client id, used to break timestamp ties (overrides TRIPLIT_CLIENT_ID)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *walPath != "" {
		cfg.WALPath = *walPath
	}
	if *clientID != "" {
		cfg.ClientID = *clientID
	}

	opts := []triplit.Option{triplit.WithWAL(cfg.WALPath)}
	if cfg.ClientID != "" {
		opts = append(opts, triplit.WithClientID(cfg.ClientID))
	}
	if cfg.EnableBackups {
		opts = append(opts, triplit.WithPeriodicBackups(cfg.BackupInterval, cfg.BackupRetention))
	}

	db, err := triplit.New(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, colorErr("failed to open database: ", err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintln(os.Stderr, colorErr("error closing database: ", err))
		}
	}()

	c := newCLI(db, context.Background())
	if err := c.run(); err != nil {
		fmt.Fprintln(os.Stderr, colorErr("fatal: ", err))
		os.Exit(1)
	}
}
