package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/config"
	"github.com/PPS-H/Invoice-manager-backend/internal/extraction"
	"google.golang.org/genai"
)

// promptTemplateText instructs the model to decide whether the message is an
// invoice and, if so, to return the structured fields as JSON matching
// responseSchema.
const promptTemplateText = `You are an invoice extraction assistant.
Inspect the email below and respond with JSON only, no prose.

If the email contains an invoice, bill, or receipt, respond with:
{"is_invoice": true, "invoice": {"vendor_name": "...", "invoice_number": "...",
"amount": 0.0, "currency": "USD", "invoice_date": "YYYY-MM-DD", "due_date": "YYYY-MM-DD"}}

If it does not, respond with:
{"is_invoice": false}

Email:
Subject: {{.Subject}}
From: {{.Sender}}
Received: {{.ReceivedAt}}

{{.Body}}`

// Extractor implements the extraction.Extractor interface using Google's
// Gemini API to pull structured invoice data out of email messages.
type Extractor struct {
	logger         *slog.Logger
	config         config.LLMConfig
	promptTemplate *template.Template
	client         *genai.Client
	model          string
}

// Compile-time check that the interface is satisfied.
var _ extraction.Extractor = (*Extractor)(nil)

// NewExtractor creates a new Extractor with the provided dependencies.
// It validates the LLM configuration and establishes the Gemini client.
func NewExtractor(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Extractor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", extraction.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", extraction.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("invoice").Parse(promptTemplateText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			extraction.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			extraction.ErrInvalidConfig, err)
	}

	return &Extractor{
		logger:         logger,
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// ExtractInvoice inspects the message and returns the invoice it contains,
// or (nil, nil) when the model reports the message carries no invoice.
func (e *Extractor) ExtractInvoice(
	ctx context.Context,
	msg extraction.EmailMessage,
) (*extraction.Invoice, error) {
	prompt, err := e.createPrompt(msg)
	if err != nil {
		return nil, err
	}

	response, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseResponse(response, msg.MessageID)
}

// createPrompt renders the prompt template for the given message.
func (e *Extractor) createPrompt(msg extraction.EmailMessage) (string, error) {
	if strings.TrimSpace(msg.Body) == "" && strings.TrimSpace(msg.Subject) == "" {
		return "", fmt.Errorf("%w: message has no content", extraction.ErrExtractionFailed)
	}

	var buf bytes.Buffer
	err := e.promptTemplate.Execute(&buf, promptData{
		Subject:    msg.Subject,
		Sender:     msg.Sender,
		ReceivedAt: msg.ReceivedAt.UTC().Format(time.RFC3339),
		Body:       msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to render prompt: %v", extraction.ErrExtractionFailed, err)
	}

	return buf.String(), nil
}

// callWithRetry makes a call to the Gemini API with exponential backoff for
// transient failures. Permanent errors (malformed responses, safety blocks)
// are returned immediately without retrying.
func (e *Extractor) callWithRetry(ctx context.Context, prompt string) (*responseSchema, error) {
	maxRetries := e.config.MaxRetries
	baseDelaySeconds := e.config.RetryDelaySeconds
	if baseDelaySeconds <= 0 {
		baseDelaySeconds = 2
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		response, err := e.callOnce(ctx, prompt)
		if err == nil {
			return response, nil
		}

		e.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attempt+1,
			"error", err)

		if errors.Is(err, extraction.ErrContentBlocked) ||
			errors.Is(err, extraction.ErrInvalidResponse) {
			return nil, err
		}

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				extraction.ErrTransientFailure, maxRetries)
		}

		// Exponential backoff with jitter:
		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoffSeconds * (0.5 + rng.Float64()*0.5) * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", extraction.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs a single Gemini API call and parses the JSON reply.
func (e *Extractor) callOnce(ctx context.Context, prompt string) (*responseSchema, error) {
	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extraction.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", extraction.ErrInvalidResponse)
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: response blocked", extraction.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty content in response", extraction.ErrInvalidResponse)
	}

	return parseResponseText(text)
}

// parseResponseText unmarshals the raw model reply into a responseSchema.
func parseResponseText(text string) (*responseSchema, error) {
	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v",
			extraction.ErrInvalidResponse, err)
	}
	return &parsed, nil
}

// parseResponse converts a responseSchema into an extraction.Invoice,
// validating the fields the rest of the system depends on.
func parseResponse(response *responseSchema, messageID string) (*extraction.Invoice, error) {
	if !response.IsInvoice {
		return nil, nil
	}

	inv := response.Invoice
	if inv == nil {
		return nil, fmt.Errorf("%w: is_invoice set without invoice payload",
			extraction.ErrInvalidResponse)
	}

	if strings.TrimSpace(inv.VendorName) == "" {
		return nil, fmt.Errorf("%w: missing vendor name", extraction.ErrInvalidResponse)
	}

	if inv.Amount < 0 {
		return nil, fmt.Errorf("%w: negative amount", extraction.ErrInvalidResponse)
	}

	currency := strings.ToUpper(strings.TrimSpace(inv.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &extraction.Invoice{
		VendorName:      inv.VendorName,
		InvoiceNumber:   inv.InvoiceNumber,
		Amount:          inv.Amount,
		Currency:        currency,
		InvoiceDate:     inv.InvoiceDate,
		DueDate:         inv.DueDate,
		SourceMessageID: messageID,
	}, nil
}
