package gemini

// promptData represents the data passed to the prompt template
type promptData struct {
	Subject    string
	Sender     string
	ReceivedAt string
	Body       string
}

// responseSchema represents the expected structure of the Gemini API reply.
type responseSchema struct {
	// IsInvoice reports whether the message contains an invoice at all.
	IsInvoice bool `json:"is_invoice"`

	// Invoice carries the extracted fields when IsInvoice is true.
	Invoice *invoiceSchema `json:"invoice,omitempty"`
}

// invoiceSchema represents the extracted invoice fields in the API response.
type invoiceSchema struct {
	VendorName    string  `json:"vendor_name"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	InvoiceDate   string  `json:"invoice_date,omitempty"`
	DueDate       string  `json:"due_date,omitempty"`
}
