package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/di"
	"github.com/mikey/mailsentry/internal/normalize"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Analysis error: %v\n", err)
		os.Exit(1)
	}
}

// run analyzes one message and prints the verdict as JSON
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	pipeline *core.Pipeline,
	normalizer *normalize.Normalizer,
) error {
	defer logger.Sync()

	raw, err := readInput(flags.InputFile)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	email, err := normalizer.Normalize(&normalize.RawMessage{
		Provider: normalize.ProviderSMTP,
		TenantID: flags.TenantID,
		RFC822:   raw,
	})
	if err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	verdict := pipeline.Analyze(ctx, email)

	encoded, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
