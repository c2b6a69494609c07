package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/esign"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/registry"
	"github.com/ankit/closepilot/internal/storage"
)

// ErrEmptyBatch is returned when a closing request carries no deal ids.
var ErrEmptyBatch = errors.New("service: at least one deal id is required")

// DealProvider fetches closing-ready deal data from the CRM.
type DealProvider interface {
	GetDeal(ctx context.Context, opportunityID string) (*domain.Deal, error)
}

// SOWDrafter produces structured statement-of-work content for a deal.
type SOWDrafter interface {
	DraftSOW(ctx context.Context, deal *domain.Deal) (*domain.SOWDraft, error)
}

// EnvelopeSender submits a document for e-signature and returns the
// envelope id.
type EnvelopeSender interface {
	SendFromTemplate(ctx context.Context, req esign.EnvelopeRequest) (string, error)
}

// HistoryWriter records successfully submitted deals.
type HistoryWriter interface {
	Append(record domain.HistoryRecord) error
}

// DocumentRenderer turns a draft into the document sent for signature.
type DocumentRenderer func(draft *domain.SOWDraft) ([]byte, error)

// ClosingService dispatches closing batches and drives each deal through
// fetch, draft, render and envelope submission. Progress is reported
// through the job registry; the caller polls, nothing blocks on it.
type ClosingService struct {
	registry *registry.Registry
	crm      DealProvider
	drafter  SOWDrafter
	esign    EnvelopeSender
	render   DocumentRenderer
	ledger   HistoryWriter
	archive  storage.ObjectStorage

	templateID  string
	signerRole  string
	dealTimeout time.Duration
	sem         chan struct{}
	log         *logger.Logger
}

// NewClosingService wires the closing pipeline. archive may be nil when
// contract archiving is disabled.
func NewClosingService(
	reg *registry.Registry,
	crm DealProvider,
	drafter SOWDrafter,
	sender EnvelopeSender,
	render DocumentRenderer,
	ledger HistoryWriter,
	archive storage.ObjectStorage,
	docusignCfg config.DocuSignConfig,
	closingCfg config.ClosingConfig,
	log *logger.Logger,
) *ClosingService {
	maxConcurrent := closingCfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	timeout := closingCfg.DealTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ClosingService{
		registry:    reg,
		crm:         crm,
		drafter:     drafter,
		esign:       sender,
		render:      render,
		ledger:      ledger,
		archive:     archive,
		templateID:  docusignCfg.TemplateID,
		signerRole:  docusignCfg.SignerRole,
		dealTimeout: timeout,
		sem:         make(chan struct{}, maxConcurrent),
		log:         log.WithField(logger.FieldComponent, "closing"),
	}
}

// BatchRequest describes one closing submission. TemplateID and
// SignerRole override the configured defaults when set.
type BatchRequest struct {
	DealIDs    []string
	TemplateID string
	SignerRole string
}

// StartBatch registers a job for the given deal ids and returns its id
// immediately. Deals are processed in background goroutines, bounded by
// the concurrency limit; each gets its own timeout so one stuck deal
// cannot hold the batch.
func (s *ClosingService) StartBatch(ctx context.Context, req BatchRequest) (string, error) {
	if len(req.DealIDs) == 0 {
		return "", ErrEmptyBatch
	}

	templateID := req.TemplateID
	if templateID == "" {
		templateID = s.templateID
	}
	signerRole := req.SignerRole
	if signerRole == "" {
		signerRole = s.signerRole
	}

	jobID := uuid.New().String()
	s.registry.Create(jobID, len(req.DealIDs))

	logger.With(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldCount: len(req.DealIDs),
	}).Info(ctx, "closing batch accepted")

	for _, dealID := range req.DealIDs {
		go func(dealID string) {
			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			// Detached from the request context: the batch outlives
			// the HTTP call that started it.
			dealCtx, cancel := context.WithTimeout(context.Background(), s.dealTimeout)
			defer cancel()
			dealCtx = s.log.WithContext(dealCtx)
			dealCtx = logger.SetJobID(dealCtx, jobID)
			dealCtx = logger.SetDealID(dealCtx, dealID)

			s.runDeal(dealCtx, jobID, dealID, templateID, signerRole)
		}(dealID)
	}

	return jobID, nil
}

// progress reports worker steps into the job record. Every step message
// lands in the shared log slice tagged with its deal id; current_step is
// shared across workers and simply shows whichever wrote last.
type progress struct {
	registry *registry.Registry
	jobID    string
	dealID   string
}

func (p *progress) step(msg string) {
	p.registry.Mutate(p.jobID, func(j *domain.Job) {
		j.CurrentStep = msg
		j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", p.dealID, msg))
	})
}

func (p *progress) succeed(msg string) {
	p.registry.Mutate(p.jobID, func(j *domain.Job) {
		j.Results[p.dealID] = msg
		j.ItemStatus[p.dealID] = domain.ItemSuccess
	})
}

func (p *progress) fail() {
	p.registry.Mutate(p.jobID, func(j *domain.Job) {
		j.ItemStatus[p.dealID] = domain.ItemFailure
	})
}

func (s *ClosingService) runDeal(ctx context.Context, jobID, dealID, templateID, signerRole string) {
	p := &progress{registry: s.registry, jobID: jobID, dealID: dealID}
	started := time.Now()

	// Terminal accounting runs no matter how the deal ends. The deal
	// that flips Completed up to Total also flips the job status, once.
	defer func() {
		s.registry.Mutate(jobID, func(j *domain.Job) {
			j.Completed++
			if j.Done() && j.Status != domain.JobStatusCompleted {
				j.Status = domain.JobStatusCompleted
				j.CurrentStep = "All deals processed"
			}
		})
	}()

	// A panic anywhere in the pipeline counts as that deal's failure;
	// it must never unwind the goroutine and take the process down.
	defer func() {
		if r := recover(); r != nil {
			p.step(fmt.Sprintf("failed: panic: %v", r))
			p.fail()
			logger.CtxError(ctx, "deal processing panicked: %v", r)
		}
	}()

	p.step("Fetching deal data from CRM")
	deal, err := s.crm.GetDeal(ctx, dealID)
	if err != nil {
		s.failDeal(ctx, p, "fetching deal data", err)
		return
	}

	p.step(fmt.Sprintf("Drafting statement of work for %s", deal.Name))
	draft, err := s.drafter.DraftSOW(ctx, deal)
	if err != nil {
		s.failDeal(ctx, p, "drafting statement of work", err)
		return
	}

	p.step("Rendering statement of work document")
	document, err := s.render(draft)
	if err != nil {
		s.failDeal(ctx, p, "rendering document", err)
		return
	}
	s.archiveDraft(ctx, deal, document)

	p.step(fmt.Sprintf("Sending envelope to %s <%s>", deal.ContactName, deal.ContactEmail))
	envelopeID, err := s.esign.SendFromTemplate(ctx, esign.EnvelopeRequest{
		TemplateID:    templateID,
		SignerName:    deal.ContactName,
		SignerEmail:   deal.ContactEmail,
		SignerRole:    signerRole,
		OpportunityID: deal.OpportunityID,
		EmailSubject:  fmt.Sprintf("Statement of Work - %s", deal.Name),
	})
	if err != nil {
		s.failDeal(ctx, p, "sending envelope", err)
		return
	}

	p.step(fmt.Sprintf("Envelope %s sent for %s", envelopeID, deal.Name))
	p.succeed(fmt.Sprintf("envelope %s sent to %s", envelopeID, deal.ContactEmail))
	s.registry.Mutate(jobID, func(j *domain.Job) {
		j.AddFinishedDeal(deal.Name)
	})

	if err := s.ledger.Append(domain.HistoryRecord{
		OpportunityID: deal.OpportunityID,
		DealName:      deal.Name,
		Amount:        deal.Amount,
		ContactName:   deal.ContactName,
		ContactEmail:  deal.ContactEmail,
		EnvelopeID:    envelopeID,
		SubmittedAt:   time.Now().UTC(),
	}); err != nil {
		logger.CtxError(ctx, "failed to record deal in history ledger: %v", err)
	}

	logger.With(logger.Fields{
		logger.FieldEnvelopeID: envelopeID,
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
	}).Info(ctx, "deal submitted for signature")
}

func (s *ClosingService) failDeal(ctx context.Context, p *progress, stage string, err error) {
	p.step(fmt.Sprintf("failed: %s: %v", stage, err))
	p.fail()
	logger.CtxError(ctx, "deal processing failed while %s: %v", stage, err)
}

// archiveDraft stores the rendered SOW. Archiving is best effort and
// never fails the deal.
func (s *ClosingService) archiveDraft(ctx context.Context, deal *domain.Deal, document []byte) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("sow/%s/statement_of_work.html", deal.OpportunityID)
	err := s.archive.Upload(ctx, key, bytes.NewReader(document), int64(len(document)), "text/html")
	if err != nil {
		logger.CtxWarn(ctx, "failed to archive drafted document: %v", err)
		return
	}
	logger.CtxDebug(ctx, "drafted document archived at %s", s.archive.GetURL(key))
}
