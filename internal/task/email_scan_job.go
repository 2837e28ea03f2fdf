package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/PPS-H/Invoice-manager-backend/internal/extraction"
	"github.com/google/uuid"
)

// JobKindEmailScan identifies the email scanning job kind.
const JobKindEmailScan = "email_scan"

// EmailFetcher retrieves messages from a linked mailbox. Implementations
// live outside the orchestrator (mail provider clients); jobs treat them as
// black boxes.
type EmailFetcher interface {
	// FetchMessages returns the messages in the target mailbox for the
	// requested surfaces and history window (in months).
	FetchMessages(
		ctx context.Context,
		ownerID, targetID uuid.UUID,
		kind domain.ScanKind,
		window int,
	) ([]extraction.EmailMessage, error)
}

// InvoiceSink persists extracted invoices. Implementations are external
// storage writers; jobs treat them as black boxes.
type InvoiceSink interface {
	// SaveInvoices stores the extracted invoices for the owner.
	SaveInvoices(ctx context.Context, ownerID uuid.UUID, invoices []*extraction.Invoice) error
}

// scanResult is the opaque payload recorded on successful completion.
type scanResult struct {
	EmailsProcessed int `json:"emails_processed"`
	InvoicesFound   int `json:"invoices_found"`
}

// EmailScanJob fetches a mailbox's messages, extracts invoices from them
// via the AI service, and persists the results, reporting staged progress
// along the way.
type EmailScanJob struct {
	id        string
	ownerID   uuid.UUID
	targetID  uuid.UUID
	kind      domain.ScanKind
	window    int
	fetcher   EmailFetcher
	extractor extraction.Extractor
	sink      InvoiceSink
	logger    *slog.Logger
}

var _ Job = (*EmailScanJob)(nil)

// NewEmailScanJob creates a scan job with a fresh runtime job ID.
func NewEmailScanJob(
	ownerID, targetID uuid.UUID,
	kind domain.ScanKind,
	window int,
	fetcher EmailFetcher,
	extractor extraction.Extractor,
	sink InvoiceSink,
	logger *slog.Logger,
) (*EmailScanJob, error) {
	return newEmailScanJobWithID(
		uuid.New().String(), ownerID, targetID, kind, window,
		fetcher, extractor, sink, logger,
	)
}

func newEmailScanJobWithID(
	id string,
	ownerID, targetID uuid.UUID,
	kind domain.ScanKind,
	window int,
	fetcher EmailFetcher,
	extractor extraction.Extractor,
	sink InvoiceSink,
	logger *slog.Logger,
) (*EmailScanJob, error) {
	if ownerID == uuid.Nil {
		return nil, domain.ErrEmptyOwnerID
	}
	if targetID == uuid.Nil {
		return nil, domain.ErrEmptyTargetID
	}
	if !domain.IsValidScanKind(kind) {
		return nil, domain.ErrInvalidScanKind
	}
	if window < domain.MinScanWindow || window > domain.MaxScanWindow {
		return nil, domain.ErrInvalidScanWindow
	}
	if fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &EmailScanJob{
		id:        id,
		ownerID:   ownerID,
		targetID:  targetID,
		kind:      kind,
		window:    window,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		logger:    logger.With("job_id", id),
	}, nil
}

// ID returns the job's unique identifier.
func (j *EmailScanJob) ID() string {
	return j.id
}

// Kind returns the job kind identifier.
func (j *EmailScanJob) Kind() string {
	return JobKindEmailScan
}

// Execute runs the scan: connect, fetch, extract, persist. Progress stages
// mirror the proportions of work: fetching is cheap, extraction dominates.
func (j *EmailScanJob) Execute(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
	progress(5, "Connecting to mailbox")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress(10, fmt.Sprintf("Fetching %d months of %s messages", j.window, j.kind))

	messages, err := j.fetcher.FetchMessages(ctx, j.ownerID, j.targetID, j.kind, j.window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	progress(25, fmt.Sprintf("Processing %d messages", len(messages)))

	var invoices []*extraction.Invoice
	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		invoice, err := j.extractor.ExtractInvoice(ctx, msg)
		if err != nil {
			// One unreadable message must not sink the whole scan.
			j.logger.Warn("skipping message, extraction failed",
				"message_id", msg.MessageID,
				"error", err)
			continue
		}
		if invoice != nil {
			invoices = append(invoices, invoice)
		}

		if pct := extractionProgress(i+1, len(messages)); pct > 25 {
			progress(pct, fmt.Sprintf("Processed %d of %d messages", i+1, len(messages)))
		}
	}

	progress(90, fmt.Sprintf("Saving %d invoices", len(invoices)))

	if len(invoices) > 0 {
		if err := j.sink.SaveInvoices(ctx, j.ownerID, invoices); err != nil {
			return nil, fmt.Errorf("failed to save invoices: %w", err)
		}
	}

	result := scanResult{
		EmailsProcessed: len(messages),
		InvoicesFound:   len(invoices),
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan result: %w", err)
	}

	return payload, nil
}

// extractionProgress maps message i of n onto the 25-90 band.
func extractionProgress(i, n int) int {
	if n == 0 {
		return 90
	}
	return 25 + (65*i)/n
}

// ScanJobFactory builds email scan jobs with the shared collaborators
// injected. The service layer uses it for new submissions; startup recovery
// uses it to rebuild jobs for interrupted task records.
type ScanJobFactory struct {
	fetcher   EmailFetcher
	extractor extraction.Extractor
	sink      InvoiceSink
	logger    *slog.Logger
}

// NewScanJobFactory creates a ScanJobFactory.
func NewScanJobFactory(
	fetcher EmailFetcher,
	extractor extraction.Extractor,
	sink InvoiceSink,
	logger *slog.Logger,
) *ScanJobFactory {
	return &ScanJobFactory{
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		logger:    logger,
	}
}

// NewScanJob creates a job for a fresh submission.
func (f *ScanJobFactory) NewScanJob(
	ownerID, targetID uuid.UUID,
	kind domain.ScanKind,
	window int,
) (Job, error) {
	return NewEmailScanJob(
		ownerID, targetID, kind, window,
		f.fetcher, f.extractor, f.sink, f.logger,
	)
}

// JobFor rebuilds the job for an existing task record, reusing its task ID
// so progress reports keep flowing to the same row.
func (f *ScanJobFactory) JobFor(t *domain.ScanTask) (Job, error) {
	return newEmailScanJobWithID(
		t.TaskID, t.OwnerID, t.TargetID, t.ScanKind, t.Window,
		f.fetcher, f.extractor, f.sink, f.logger,
	)
}
