// Package main provides the scout command line: web search and page
// retrieval through a real browser, with JSON output.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/scout/pkg/app"
	"github.com/entrhq/scout/pkg/types"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := newRootCmd(app.New).ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
	stop()
}

// printError writes err with its kind so scripts can tell a block from a
// timeout.
func printError(w io.Writer, err error) {
	if kind := types.KindOf(err); kind != "" {
		fmt.Fprintf(w, "Error [%s]: %v\n", kind, err)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
