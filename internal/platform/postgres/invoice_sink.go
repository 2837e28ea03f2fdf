package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/extraction"
	"github.com/PPS-H/Invoice-manager-backend/internal/store"
	"github.com/google/uuid"
)

// PostgresInvoiceSink persists extracted invoices.
// Re-scans of the same window hit the (owner_id, source_message_id) unique
// index; those conflicts are skipped, not errors.
type PostgresInvoiceSink struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresInvoiceSink creates an invoice sink backed by the given
// database connection.
func NewPostgresInvoiceSink(db store.DBTX, logger *slog.Logger) *PostgresInvoiceSink {
	return &PostgresInvoiceSink{
		db:     db,
		logger: logger.With("component", "invoice_sink"),
	}
}

// SaveInvoices stores the extracted invoices for the owner, skipping any
// already captured from the same source message.
func (s *PostgresInvoiceSink) SaveInvoices(
	ctx context.Context,
	ownerID uuid.UUID,
	invoices []*extraction.Invoice,
) error {
	if len(invoices) == 0 {
		return nil
	}

	query := `
		INSERT INTO invoices (id, owner_id, vendor_name, invoice_number,
			amount, currency, invoice_date, due_date, source_message_id,
			created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id, source_message_id) DO NOTHING
	`

	now := time.Now().UTC()
	saved := 0

	for _, inv := range invoices {
		result, err := s.db.ExecContext(ctx, query,
			uuid.New(),
			ownerID,
			inv.VendorName,
			inv.InvoiceNumber,
			inv.Amount,
			inv.Currency,
			nullDate(inv.InvoiceDate),
			nullDate(inv.DueDate),
			inv.SourceMessageID,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to save invoice from message %q: %w",
				inv.SourceMessageID, MapError(err))
		}

		if rows, err := result.RowsAffected(); err == nil && rows > 0 {
			saved++
		}
	}

	s.logger.Debug("invoices saved",
		"owner_id", ownerID,
		"extracted", len(invoices),
		"saved", saved)

	return nil
}

// nullDate converts a YYYY-MM-DD string to a nullable SQL value.
// Empty or malformed dates store as NULL rather than failing the insert.
func nullDate(s string) sql.NullTime {
	if s == "" {
		return sql.NullTime{}
	}

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t, Valid: true}
}
