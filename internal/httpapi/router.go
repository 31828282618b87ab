// Package httpapi exposes the invoicing engine over a small JSON HTTP API
// for local integrations.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"invoicekit/internal/banks"
	"invoicekit/internal/document"
	"invoicekit/internal/logger"
	"invoicekit/internal/numbering"
	"invoicekit/internal/registry"
	"invoicekit/pkg/models"
)

// Numbering is the part of the number allocator the API drives.
type Numbering interface {
	numbering.Allocator
	Reservation(kind models.Kind) (string, bool)
	Snapshot() numbering.State
}

// Handler holds the services behind the API. Registry and Documents are
// optional; their routes answer 501 when unset.
type Handler struct {
	Numbers   Numbering
	Banks     *banks.Table
	Registry  registry.Registry
	Documents *document.Service

	log zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(numbers Numbering, table *banks.Table, reg registry.Registry, docs *document.Service) *Handler {
	return &Handler{
		Numbers:   numbers,
		Banks:     table,
		Registry:  reg,
		Documents: docs,
		log:       logger.WithComponent("httpapi"),
	}
}

// NewRouter mounts all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestIDMiddleware)
	r.Use(h.accessLogMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/iban/derive", h.deriveIban)
	r.Post("/iban/validate", h.validateIban)
	r.Post("/totals", h.computeTotals)
	r.Post("/payload", h.buildPayload)

	r.Route("/numbers", func(r chi.Router) {
		r.Get("/", h.listNumbers)
		r.Post("/{kind}/reserve", h.reserveNumber)
		r.Post("/{kind}/commit", h.commitNumber)
		r.Post("/{kind}/abandon", h.abandonNumber)
	})

	r.Get("/banks", h.listBanks)
	r.Get("/banks/{code}", h.getBank)
	r.Get("/registry/{ico}", h.lookupRegistry)
	r.Post("/documents", h.issueDocument)

	return r
}
