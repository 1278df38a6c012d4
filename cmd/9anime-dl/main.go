package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			util.Warn("Interrupted")
		} else {
			fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		}
		os.Exit(1)
	}
}
