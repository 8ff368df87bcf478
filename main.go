package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chronostore/chronostore/cmd"
	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/logging"
	"github.com/chronostore/chronostore/internal/recordstore"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := recordstore.InitializeLogger(""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: store file logging disabled: %v\n", err)
	}
	defer func() {
		if err := recordstore.CloseLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store logger: %v\n", err)
		}
	}()

	if settings.Debug {
		recordstore.SetLogLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
