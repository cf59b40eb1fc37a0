package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/camp-logistics/internal/config"
	"github.com/example/camp-logistics/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run loads the configuration, opens the store and executes one command.
// It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "campctl: %v\n", err)
		return 2
	}

	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "campctl: %v\n", err)
		return 2
	}
	ctx = logging.ContextWithLogger(ctx, logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.StoreDriver, "error", err)
		return 1
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	a, err := newApp(ctx, cfg, store, logger, stdout)
	if err != nil {
		logger.Error("failed to start console", "error", err)
		return 1
	}
	defer a.close()

	if err := a.execute(ctx, args); err != nil {
		fmt.Fprintf(stderr, "campctl: %s\n", describeError(err))
		return exitCode(err)
	}
	return 0
}
