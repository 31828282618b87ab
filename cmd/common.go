package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"invoicekit/internal/banks"
	"invoicekit/internal/config"
	"invoicekit/internal/numbering"
	"invoicekit/pkg/models"
)

// loadConfig reads the environment configuration.
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openSequencer opens the configured counter store and wraps it in a
// Sequencer. The returned close function releases the store.
func openSequencer(cfg *config.Config, log zerolog.Logger) (*numbering.Sequencer, func(), error) {
	store, err := numbering.OpenStore(cfg.CounterBackend, cfg.CounterPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("backend", cfg.CounterBackend).
			Str("path", cfg.CounterPath).
			Msg("Failed to open counter store")
		if errors.Is(err, numbering.ErrStoreLocked) {
			return nil, nil, fmt.Errorf("%w; stop the running server or point COUNTER_PATH elsewhere", err)
		}
		return nil, nil, fmt.Errorf("failed to open counter store: %w", err)
	}

	log.Debug().
		Str("backend", cfg.CounterBackend).
		Str("path", cfg.CounterPath).
		Msg("Counter store opened")

	closeFn := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close counter store")
		}
	}
	return numbering.NewSequencer(store), closeFn, nil
}

// loadBanks loads the configured bank table, falling back to the built-in
// one when the file is unusable.
func loadBanks(cfg *config.Config, log zerolog.Logger) *banks.Table {
	table, err := banks.Load(cfg.BanksFile)
	if err != nil {
		log.Warn().
			Err(err).
			Str("file", cfg.BanksFile).
			Msg("Bank table unusable, using built-in table")
		return banks.Default()
	}
	return table
}

// loadDocumentFile reads a document from YAML (JSON is accepted too).
func loadDocumentFile(path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	var doc models.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document file %s: %w", path, err)
	}

	if doc.Kind == "" {
		doc.Kind = models.KindInvoice
	}
	kind, err := models.ParseKind(string(doc.Kind))
	if err != nil {
		return nil, fmt.Errorf("document file %s: %w", path, err)
	}
	doc.Kind = kind

	if doc.PaymentMethod == "" {
		doc.PaymentMethod = models.DefaultPaymentMethod
	}
	return &doc, nil
}

// createCommandContext creates a context with timeout and signal handling
func createCommandContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// writeOutput prints v as indented JSON to stdout or to outputPath.
func writeOutput(v any, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(jsonData))
		return nil
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(jsonData)).
		Msg("Output written to file")
	return nil
}
