package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/mailsentry/internal/adapters/smtpproxy"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/di"
	"go.uber.org/zap"
)

func main() {
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	proxy *smtpproxy.Proxy,
	analyzer core.DeepAnalyzer,
	store core.BaselineStore,
	resolver core.DNSResolver,
) error {
	defer logger.Sync()

	if err := proxy.Start(); err != nil {
		logger.Fatal("Failed to start SMTP proxy", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := proxy.Stop(); err != nil {
		logger.Error("Failed to stop SMTP proxy", zap.Error(err))
	}

	if closer, ok := analyzer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close deep analyzer", zap.Error(err))
		}
	}

	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close baseline store", zap.Error(err))
		}
	}

	if stopper, ok := resolver.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
