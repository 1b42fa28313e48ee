// Command importctl validates and imports institution CSV files from the
// command line.
//
//	importctl template > institutions.csv
//	importctl validate institutions.csv
//	importctl import institutions.csv --merge-duplicates --owner 6f1c...
//
// Results are printed as JSON on stdout; logs go to stderr. Exit codes:
// 0 success, 2 the run finished with row errors, 3 usage, 4 database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Overload()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
