package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"invoicekit/internal/document"
	"invoicekit/internal/httpapi"
	"invoicekit/internal/logger"
	"invoicekit/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON HTTP API",
	Long: `Serve IBAN, totals, numbering, payload, bank, registry and document
issuing endpoints over HTTP. All requests share one number allocator, so
reservations made through the API can be committed or abandoned later.`,
	Example: `  invoicekit serve
  invoicekit serve --addr 127.0.0.1:9000 --no-registry`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().Bool("no-registry", false, "Disable ARES lookups")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	noRegistry, _ := cmd.Flags().GetBool("no-registry")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.HTTPAddr
	}

	seq, closeStore, err := openSequencer(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	table := loadBanks(cfg, log)
	docs := document.NewService(seq, document.NewJSONExporter(cfg.ExportDir), table)

	var reg registry.Registry
	if !noRegistry {
		reg = registry.NewARESClient(cfg.AresBaseURL, cfg.AresTimeout)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(seq, table, reg, docs)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.AresTimeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("counter_backend", cfg.CounterBackend).
			Bool("registry", reg != nil).
			Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		return err
	}
	return nil
}
