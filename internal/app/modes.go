package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mcpcoordinator/pkg/logging"
)

// runServices starts every non-nil Transport Adapter and the configuration
// Watcher (if enabled), then blocks until ctx is cancelled or SIGINT/SIGTERM
// is received, performing a graceful Close on the way out.
func runServices(ctx context.Context, services *Services) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)
	var wg sync.WaitGroup

	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("CLI", err, "%s adapter stopped", name)
				errCh <- err
				cancel()
			}
		}()
	}

	if services.Stdio != nil {
		start("stdio", services.Stdio.Serve)
	}
	if services.HTTP != nil {
		start("http", services.HTTP.ListenAndServe)
	}
	if services.WS != nil {
		start("websocket", services.WS.ListenAndServe)
	}
	if services.Watcher != nil {
		start("config-watcher", services.Watcher.Start)
	}

	logging.Info("CLI", "coordinator running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logging.Info("CLI", "shutdown signal received")
	case <-runCtx.Done():
	}
	cancel()
	wg.Wait()

	closeErr := services.Close()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return closeErr
}
