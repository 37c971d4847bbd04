// Command csvwdc infers the schema of a CSV file or URL and prints it, or
// exports the inferred table to PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvwdc/internal/core"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		msg := err.Error()
		if core.IsUserFacing(err) {
			msg = core.FormatUserError(err) + "\n  " + err.Error()
		}
		fmt.Fprintln(os.Stderr, "Error:", msg)
		stop()
		os.Exit(1)
	}
}
