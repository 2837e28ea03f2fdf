package gemini

import (
	"context"
	"strings"

	"github.com/PPS-H/Invoice-manager-backend/internal/extraction"
)

// MockExtractor is a stand-in extraction.Extractor for tests and local
// development without API credentials. It reports an invoice for any message
// whose subject mentions one, and returns canned field values.
type MockExtractor struct {
	// Err, when set, is returned by every call.
	Err error
}

var _ extraction.Extractor = (*MockExtractor)(nil)

// ExtractInvoice returns a canned invoice when the subject looks like one.
func (m *MockExtractor) ExtractInvoice(
	_ context.Context,
	msg extraction.EmailMessage,
) (*extraction.Invoice, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	subject := strings.ToLower(msg.Subject)
	if !strings.Contains(subject, "invoice") && !strings.Contains(subject, "receipt") {
		return nil, nil
	}

	return &extraction.Invoice{
		VendorName:      msg.Sender,
		Amount:          42.00,
		Currency:        "USD",
		SourceMessageID: msg.MessageID,
	}, nil
}
