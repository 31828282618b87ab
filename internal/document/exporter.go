package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"invoicekit/internal/logger"
	"invoicekit/internal/payment"
	"invoicekit/internal/totals"
	"invoicekit/pkg/models"
)

// Artifact is the finished document handed to an Exporter.
type Artifact struct {
	ID            string           `json:"id"`
	IssuedAt      time.Time        `json:"issued_at"`
	Document      *models.Document `json:"document"`
	Totals        totals.Totals    `json:"totals"`
	Payment       *payment.Payload `json:"payment,omitempty"`
	PaymentString string           `json:"payment_payload,omitempty"`
}

// Exporter persists an artifact and returns where it was written.
type Exporter interface {
	Export(ctx context.Context, a *Artifact) (string, error)
}

// JSONExporter writes each artifact to <Dir>/<display number>.json.
type JSONExporter struct {
	Dir string
	log zerolog.Logger
}

// NewJSONExporter creates an exporter writing into dir.
func NewJSONExporter(dir string) *JSONExporter {
	return &JSONExporter{
		Dir: dir,
		log: logger.WithComponent("exporter"),
	}
}

// Export writes the artifact. An existing file with the same name is
// replaced.
func (e *JSONExporter) Export(ctx context.Context, a *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := a.Document.DisplayNumber()
	if name == "" {
		return "", fmt.Errorf("artifact %s has no document number", a.ID)
	}

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}

	path := filepath.Join(e.Dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	e.log.Debug().
		Str("artifact_id", a.ID).
		Str("path", path).
		Int("bytes", len(data)).
		Msg("Artifact written")

	return path, nil
}
