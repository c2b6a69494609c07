package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/esign"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/registry"
)

type fakeCRM struct {
	mu    sync.Mutex
	deals map[string]*domain.Deal
	// block, when set for an id, holds GetDeal until the channel closes.
	block map[string]chan struct{}
	// panics, when set for an id, makes GetDeal panic.
	panics map[string]bool
}

func (f *fakeCRM) GetDeal(ctx context.Context, opportunityID string) (*domain.Deal, error) {
	f.mu.Lock()
	gate := f.block[opportunityID]
	deal, ok := f.deals[opportunityID]
	shouldPanic := f.panics[opportunityID]
	f.mu.Unlock()

	if shouldPanic {
		panic("corrupt CRM response for " + opportunityID)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, fmt.Errorf("no opportunity with id %s", opportunityID)
	}
	copied := *deal
	return &copied, nil
}

type fakeDrafter struct{}

func (fakeDrafter) DraftSOW(ctx context.Context, deal *domain.Deal) (*domain.SOWDraft, error) {
	return &domain.SOWDraft{
		ProjectName: deal.Name,
		ClientName:  deal.AccountName,
		ScopeItems:  []domain.ScopeItem{{Title: "Delivery", Description: "Deliver the work"}},
		Milestones:  []domain.Milestone{{Name: "Kickoff", Amount: "$1"}},
	}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []esign.EnvelopeRequest
}

func (f *fakeSender) SendFromTemplate(ctx context.Context, req esign.EnvelopeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return fmt.Sprintf("env-%d", len(f.sent)), nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
	err     error
}

func (f *fakeLedger) Append(record domain.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func renderStub(draft *domain.SOWDraft) ([]byte, error) {
	return []byte("<html>" + draft.ProjectName + "</html>"), nil
}

func sampleDeal(id, name string) *domain.Deal {
	return &domain.Deal{
		OpportunityID: id,
		Name:          name,
		AccountName:   name + " Corp",
		Amount:        50000,
		Stage:         "Negotiation/Review",
		ContactName:   "Dana Signer",
		ContactEmail:  "dana@example.com",
	}
}

func newTestService(crm *fakeCRM, sender *fakeSender, ledger *fakeLedger) (*ClosingService, *registry.Registry) {
	reg := registry.New(logger.NewDefault())
	svc := NewClosingService(
		reg, crm, fakeDrafter{}, sender, renderStub, ledger, nil,
		config.DocuSignConfig{TemplateID: "tmpl-1", SignerRole: "Signer"},
		config.ClosingConfig{MaxConcurrent: 4, DealTimeout: 5 * time.Second},
		logger.NewDefault(),
	)
	return svc, reg
}

func waitForJob(t *testing.T, reg *registry.Registry, jobID string) domain.Job {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		snap, ok := reg.Snapshot(jobID)
		if ok && snap.Status == domain.JobStatusCompleted {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("job %s did not complete in time: %+v", jobID, snap)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartBatchEmpty(t *testing.T) {
	svc, _ := newTestService(&fakeCRM{}, &fakeSender{}, &fakeLedger{})

	if _, err := svc.StartBatch(context.Background(), BatchRequest{}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestBatchPartialFailure(t *testing.T) {
	crm := &fakeCRM{deals: map[string]*domain.Deal{
		"opp-1": sampleDeal("opp-1", "Acme Renewal"),
		"opp-3": sampleDeal("opp-3", "Globex Expansion"),
	}}
	sender := &fakeSender{}
	ledger := &fakeLedger{}
	svc, reg := newTestService(crm, sender, ledger)

	jobID, err := svc.StartBatch(context.Background(), BatchRequest{DealIDs: []string{"opp-1", "opp-2", "opp-3"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	snap := waitForJob(t, reg, jobID)

	if snap.Completed != 3 || snap.Total != 3 {
		t.Fatalf("expected 3/3 completed, got %d/%d", snap.Completed, snap.Total)
	}
	if len(snap.Results) != 2 {
		t.Fatalf("expected results only for submitted deals, got %d", len(snap.Results))
	}
	for _, id := range []string{"opp-1", "opp-3"} {
		if !strings.Contains(snap.Results[id], "sent to") {
			t.Fatalf("expected success result for %s, got %q", id, snap.Results[id])
		}
		if snap.ItemStatus[id] != domain.ItemSuccess {
			t.Fatalf("expected success status for %s, got %q", id, snap.ItemStatus[id])
		}
	}
	if snap.ItemStatus["opp-2"] != domain.ItemFailure {
		t.Fatalf("expected failure status for opp-2, got %q", snap.ItemStatus["opp-2"])
	}
	if len(snap.FinishedDeals) != 2 {
		t.Fatalf("expected 2 finished deals, got %v", snap.FinishedDeals)
	}

	var failureLogged bool
	for _, line := range snap.Logs {
		if strings.HasPrefix(line, "[opp-2] failed:") {
			failureLogged = true
		}
	}
	if !failureLogged {
		t.Fatalf("expected a tagged failure log for opp-2, got %v", snap.Logs)
	}

	if got := ledger.count(); got != 2 {
		t.Fatalf("expected 2 ledger records, got %d", got)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(sender.sent))
	}
	for _, req := range sender.sent {
		if req.TemplateID != "tmpl-1" || req.SignerRole != "Signer" {
			t.Fatalf("envelope request missing template wiring: %+v", req)
		}
		if req.OpportunityID == "" {
			t.Fatal("envelope request missing opportunity id")
		}
	}
}

func TestBatchesDoNotBlockEachOther(t *testing.T) {
	gate := make(chan struct{})
	crm := &fakeCRM{
		deals: map[string]*domain.Deal{
			"opp-slow": sampleDeal("opp-slow", "Slow Deal"),
			"opp-fast": sampleDeal("opp-fast", "Fast Deal"),
		},
		block: map[string]chan struct{}{"opp-slow": gate},
	}
	svc, reg := newTestService(crm, &fakeSender{}, &fakeLedger{})

	slowJob, err := svc.StartBatch(context.Background(), BatchRequest{DealIDs: []string{"opp-slow"}})
	if err != nil {
		t.Fatalf("StartBatch slow: %v", err)
	}
	fastJob, err := svc.StartBatch(context.Background(), BatchRequest{DealIDs: []string{"opp-fast"}})
	if err != nil {
		t.Fatalf("StartBatch fast: %v", err)
	}

	waitForJob(t, reg, fastJob)

	if snap, _ := reg.Snapshot(slowJob); snap.Status != domain.JobStatusRunning {
		t.Fatalf("slow job should still be running, got %s", snap.Status)
	}

	close(gate)
	waitForJob(t, reg, slowJob)
}

func TestBatchTemplateOverride(t *testing.T) {
	crm := &fakeCRM{deals: map[string]*domain.Deal{
		"opp-1": sampleDeal("opp-1", "Acme Renewal"),
	}}
	sender := &fakeSender{}
	svc, reg := newTestService(crm, sender, &fakeLedger{})

	jobID, err := svc.StartBatch(context.Background(), BatchRequest{
		DealIDs:    []string{"opp-1"},
		TemplateID: "tmpl-override",
		SignerRole: "Countersigner",
	})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	waitForJob(t, reg, jobID)

	if len(sender.sent) != 1 {
		t.Fatalf("expected one envelope, got %d", len(sender.sent))
	}
	if got := sender.sent[0]; got.TemplateID != "tmpl-override" || got.SignerRole != "Countersigner" {
		t.Fatalf("override not applied: %+v", got)
	}
}

func TestLedgerFailureDoesNotFailDeal(t *testing.T) {
	crm := &fakeCRM{deals: map[string]*domain.Deal{
		"opp-1": sampleDeal("opp-1", "Acme Renewal"),
	}}
	ledger := &fakeLedger{err: errors.New("disk full")}
	svc, reg := newTestService(crm, &fakeSender{}, ledger)

	jobID, err := svc.StartBatch(context.Background(), BatchRequest{DealIDs: []string{"opp-1"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	snap := waitForJob(t, reg, jobID)
	if !strings.Contains(snap.Results["opp-1"], "sent to") {
		t.Fatalf("deal should succeed despite ledger error, got %q", snap.Results["opp-1"])
	}
}

func TestDealPanicDoesNotKillBatch(t *testing.T) {
	crm := &fakeCRM{
		deals:  map[string]*domain.Deal{"opp-ok": sampleDeal("opp-ok", "Acme Renewal")},
		panics: map[string]bool{"opp-bad": true},
	}
	sender := &fakeSender{}
	svc, reg := newTestService(crm, sender, &fakeLedger{})

	jobID, err := svc.StartBatch(context.Background(), BatchRequest{DealIDs: []string{"opp-ok", "opp-bad"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	snap := waitForJob(t, reg, jobID)

	if snap.Completed != 2 || snap.Total != 2 {
		t.Fatalf("expected 2/2 completed, got %d/%d", snap.Completed, snap.Total)
	}
	if snap.ItemStatus["opp-bad"] != domain.ItemFailure {
		t.Fatalf("expected failure status for opp-bad, got %q", snap.ItemStatus["opp-bad"])
	}
	if snap.ItemStatus["opp-ok"] != domain.ItemSuccess {
		t.Fatalf("expected success status for opp-ok, got %q", snap.ItemStatus["opp-ok"])
	}

	var panicLogged bool
	for _, line := range snap.Logs {
		if strings.HasPrefix(line, "[opp-bad] failed: panic:") {
			panicLogged = true
		}
	}
	if !panicLogged {
		t.Fatalf("expected a tagged panic log for opp-bad, got %v", snap.Logs)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected the surviving deal to send one envelope, got %d", len(sender.sent))
	}
}

// syncBuffer is a goroutine-safe log sink for asserting on emitted fields.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWorkerLogsCarryJobAndDealIDs(t *testing.T) {
	out := &syncBuffer{}
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: out, ServiceName: "closepilot"})

	reg := registry.New(log)
	svc := NewClosingService(
		reg, &fakeCRM{}, fakeDrafter{}, &fakeSender{}, renderStub, &fakeLedger{}, nil,
		config.DocuSignConfig{TemplateID: "tmpl-1", SignerRole: "Signer"},
		config.ClosingConfig{MaxConcurrent: 2, DealTimeout: 5 * time.Second},
		log,
	)

	jobID, err := svc.StartBatch(context.Background(), BatchRequest{DealIDs: []string{"opp-x"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	waitForJob(t, reg, jobID)

	logs := out.String()
	if !strings.Contains(logs, `"job_id":"`+jobID+`"`) {
		t.Fatalf("worker logs missing job_id field:\n%s", logs)
	}
	if !strings.Contains(logs, `"deal_id":"opp-x"`) {
		t.Fatalf("worker logs missing deal_id field:\n%s", logs)
	}
}
