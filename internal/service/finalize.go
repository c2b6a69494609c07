package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ankit/closepilot/internal/esign"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/storage"
)

const (
	closedWonStage     = "Closed Won"
	signedContractName = "Signed_Contract.pdf"
)

// SignedDocumentSource retrieves the combined signed document for an
// envelope.
type SignedDocumentSource interface {
	DownloadSigned(ctx context.Context, envelopeID string) ([]byte, error)
}

// CRMWriteback performs the post-signature updates on the opportunity.
type CRMWriteback interface {
	AttachDocument(ctx context.Context, recordID string, content []byte, fileName string) error
	SetStage(ctx context.Context, opportunityID, stage string) error
}

// FinalizeService reacts to e-signature status events. When an envelope
// completes it attaches the signed contract to the opportunity and moves
// its stage forward. The signature flow runs entirely on the provider
// side, so events are handled independently of any closing job.
type FinalizeService struct {
	crm     CRMWriteback
	source  SignedDocumentSource
	archive storage.ObjectStorage
	timeout time.Duration
	log     *logger.Logger

	mu        sync.Mutex
	processed map[string]bool
	wg        sync.WaitGroup
}

// NewFinalizeService builds the reconciler. archive may be nil.
func NewFinalizeService(crm CRMWriteback, source SignedDocumentSource, archive storage.ObjectStorage, log *logger.Logger) *FinalizeService {
	return &FinalizeService{
		crm:       crm,
		source:    source,
		archive:   archive,
		timeout:   2 * time.Minute,
		log:       log.WithField(logger.FieldComponent, "finalize"),
		processed: make(map[string]bool),
	}
}

// HandleEvent ingests one webhook payload. It never returns an error to
// the caller: the provider retries on non-200 responses, and a retry
// cannot fix a payload we could not use. Completed envelopes kick off
// finalization in a background goroutine; everything else is logged and
// dropped.
func (s *FinalizeService) HandleEvent(ctx context.Context, body []byte) {
	event, err := esign.ParseConnectEvent(body)
	if err != nil {
		logger.CtxWarn(ctx, "discarding unparseable signature event: %v", err)
		return
	}

	envelopeID := event.Data.EnvelopeID
	log := s.log.WithField(logger.FieldEnvelopeID, envelopeID)
	if !event.Completed() {
		log.Infof("Ignoring signature event with status %q", event.Status())
		return
	}

	opportunityID := event.OpportunityID()
	if opportunityID == "" {
		log.Error("Completed envelope carries no opportunity id custom field, cannot finalize")
		return
	}

	s.mu.Lock()
	if s.processed[envelopeID] {
		s.mu.Unlock()
		log.Info("Envelope already finalized or in flight, skipping duplicate event")
		return
	}
	s.processed[envelopeID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		finCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		finCtx = s.log.WithContext(finCtx)
		finCtx = logger.SetDealID(finCtx, opportunityID)
		finCtx = logger.WithFields(finCtx, logger.Fields{logger.FieldEnvelopeID: envelopeID})

		if err := s.runFinalize(finCtx, envelopeID, opportunityID); err != nil {
			// Drop the dedupe mark so the provider's redelivery can
			// retry a transiently failed finalization; the pipeline
			// is idempotent, so a post-success duplicate is the only
			// case the mark must block.
			s.mu.Lock()
			delete(s.processed, envelopeID)
			s.mu.Unlock()
		}
	}()
}

// Wait blocks until in-flight finalizations drain. Used during shutdown.
func (s *FinalizeService) Wait() {
	s.wg.Wait()
}

// runFinalize shields the detached goroutine: a panic in the pipeline is
// converted to an error so it can never take the process down.
func (s *FinalizeService) runFinalize(ctx context.Context, envelopeID, opportunityID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "contract finalization panicked: %v", r)
			err = fmt.Errorf("finalization panicked: %v", r)
		}
	}()
	return s.finalize(ctx, envelopeID, opportunityID)
}

// finalize downloads the signed contract, attaches it to the opportunity
// and advances the stage. Failures are logged, there is no client to
// surface them to; the returned error only controls whether a redelivery
// may retry.
func (s *FinalizeService) finalize(ctx context.Context, envelopeID, opportunityID string) error {
	logger.CtxInfo(ctx, "finalizing completed envelope")

	document, err := s.source.DownloadSigned(ctx, envelopeID)
	if err != nil {
		logger.CtxError(ctx, "failed to download signed contract: %v", err)
		return err
	}

	if err := s.crm.AttachDocument(ctx, opportunityID, document, signedContractName); err != nil {
		logger.CtxError(ctx, "failed to attach signed contract to opportunity: %v", err)
		return err
	}

	if err := s.crm.SetStage(ctx, opportunityID, closedWonStage); err != nil {
		logger.CtxError(ctx, "failed to advance opportunity stage: %v", err)
		return err
	}

	s.archiveSigned(ctx, opportunityID, document)
	logger.CtxInfo(ctx, "opportunity closed won")
	return nil
}

func (s *FinalizeService) archiveSigned(ctx context.Context, opportunityID string, document []byte) {
	if s.archive == nil {
		return
	}
	key := "contracts/" + opportunityID + "/" + signedContractName
	err := s.archive.Upload(ctx, key, bytes.NewReader(document), int64(len(document)), "application/pdf")
	if err != nil {
		logger.CtxWarn(ctx, "failed to archive signed contract: %v", err)
	}
}
