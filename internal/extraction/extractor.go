package extraction

import (
	"context"
	"time"
)

// EmailMessage is the raw material a scan feeds into invoice extraction.
type EmailMessage struct {
	// MessageID is the provider's identifier for the message.
	MessageID string

	// Subject is the message subject line.
	Subject string

	// Sender is the From address.
	Sender string

	// Body is the plain-text message body.
	Body string

	// ReceivedAt is when the message arrived in the mailbox.
	ReceivedAt time.Time
}

// Invoice is a structured invoice record extracted from an email.
type Invoice struct {
	// VendorName is the issuing vendor, as stated on the invoice.
	VendorName string `json:"vendor_name"`

	// InvoiceNumber is the vendor's invoice identifier, if present.
	InvoiceNumber string `json:"invoice_number,omitempty"`

	// Amount is the total amount due.
	Amount float64 `json:"amount"`

	// Currency is the ISO 4217 currency code.
	Currency string `json:"currency"`

	// InvoiceDate is the issue date in YYYY-MM-DD form, if present.
	InvoiceDate string `json:"invoice_date,omitempty"`

	// DueDate is the payment due date in YYYY-MM-DD form, if present.
	DueDate string `json:"due_date,omitempty"`

	// SourceMessageID links the invoice back to the originating email.
	SourceMessageID string `json:"source_message_id"`
}

// Extractor defines the interface for extracting invoice data from email
// messages. This interface serves as a boundary between the scan pipeline
// and external AI/LLM services.
type Extractor interface {
	// ExtractInvoice inspects the message and returns the invoice it
	// contains, or (nil, nil) when the message carries no invoice.
	// Errors follow the taxonomy in errors.go.
	ExtractInvoice(ctx context.Context, msg EmailMessage) (*Invoice, error)
}
