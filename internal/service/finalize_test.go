package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ankit/closepilot/internal/logger"
)

type fakeWriteback struct {
	mu        sync.Mutex
	attached  []string
	fileNames []string
	stages    map[string]string
	stageErr  error
}

func (f *fakeWriteback) AttachDocument(ctx context.Context, recordID string, content []byte, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, recordID)
	f.fileNames = append(f.fileNames, fileName)
	return nil
}

func (f *fakeWriteback) SetStage(ctx context.Context, opportunityID, stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stageErr != nil {
		return f.stageErr
	}
	if f.stages == nil {
		f.stages = make(map[string]string)
	}
	f.stages[opportunityID] = stage
	return nil
}

type fakeSource struct {
	err error
}

func (f *fakeSource) DownloadSigned(ctx context.Context, envelopeID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 " + envelopeID), nil
}

func completedEvent(envelopeID, opportunityID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "envelope-completed",
		"data": {
			"envelopeId": %q,
			"envelopeSummary": {
				"status": "completed",
				"customFields": {
					"textCustomFields": [
						{"name": "opportunity_id", "value": %q}
					]
				}
			}
		}
	}`, envelopeID, opportunityID))
}

func TestFinalizeCompletedEnvelope(t *testing.T) {
	crm := &fakeWriteback{}
	svc := NewFinalizeService(crm, &fakeSource{}, nil, logger.NewDefault())

	svc.HandleEvent(context.Background(), completedEvent("env-1", "opp-1"))
	svc.Wait()

	if len(crm.attached) != 1 || crm.attached[0] != "opp-1" {
		t.Fatalf("expected one attachment on opp-1, got %v", crm.attached)
	}
	if crm.fileNames[0] != "Signed_Contract.pdf" {
		t.Fatalf("unexpected attachment file name %q", crm.fileNames[0])
	}
	if crm.stages["opp-1"] != "Closed Won" {
		t.Fatalf("expected stage Closed Won, got %q", crm.stages["opp-1"])
	}
}

func TestFinalizeMissingOpportunityID(t *testing.T) {
	crm := &fakeWriteback{}
	svc := NewFinalizeService(crm, &fakeSource{}, nil, logger.NewDefault())

	svc.HandleEvent(context.Background(), []byte(`{
		"event": "envelope-completed",
		"data": {"envelopeId": "env-1", "envelopeSummary": {"status": "completed"}}
	}`))
	svc.Wait()

	if len(crm.attached) != 0 || len(crm.stages) != 0 {
		t.Fatalf("expected no CRM calls without an opportunity id, got %v %v", crm.attached, crm.stages)
	}
}

func TestFinalizeIgnoresNonCompleted(t *testing.T) {
	crm := &fakeWriteback{}
	svc := NewFinalizeService(crm, &fakeSource{}, nil, logger.NewDefault())

	svc.HandleEvent(context.Background(), []byte(`{
		"event": "envelope-sent",
		"data": {"envelopeId": "env-1", "envelopeSummary": {"status": "sent"}}
	}`))
	svc.Wait()

	if len(crm.attached) != 0 {
		t.Fatalf("expected no finalization for sent status, got %v", crm.attached)
	}
}

func TestFinalizeDuplicateDelivery(t *testing.T) {
	crm := &fakeWriteback{}
	svc := NewFinalizeService(crm, &fakeSource{}, nil, logger.NewDefault())

	body := completedEvent("env-1", "opp-1")
	svc.HandleEvent(context.Background(), body)
	svc.HandleEvent(context.Background(), body)
	svc.Wait()

	if len(crm.attached) != 1 {
		t.Fatalf("expected exactly one attachment for duplicate delivery, got %d", len(crm.attached))
	}
}

func TestFinalizeDownloadFailure(t *testing.T) {
	crm := &fakeWriteback{}
	svc := NewFinalizeService(crm, &fakeSource{err: errors.New("envelope not ready")}, nil, logger.NewDefault())

	svc.HandleEvent(context.Background(), completedEvent("env-1", "opp-1"))
	svc.Wait()

	if len(crm.attached) != 0 {
		t.Fatalf("expected no attachment when download fails, got %v", crm.attached)
	}
}

func TestFinalizeRetriesAfterTransientFailure(t *testing.T) {
	crm := &fakeWriteback{}
	source := &fakeSource{err: errors.New("envelope not ready")}
	svc := NewFinalizeService(crm, source, nil, logger.NewDefault())

	body := completedEvent("env-1", "opp-1")
	svc.HandleEvent(context.Background(), body)
	svc.Wait()

	if len(crm.attached) != 0 {
		t.Fatalf("expected no attachment on the failed delivery, got %v", crm.attached)
	}

	source.err = nil
	svc.HandleEvent(context.Background(), body)
	svc.Wait()

	if len(crm.attached) != 1 || crm.attached[0] != "opp-1" {
		t.Fatalf("expected the redelivery to finalize the envelope, got %v", crm.attached)
	}
	if crm.stages["opp-1"] != "Closed Won" {
		t.Fatalf("expected stage Closed Won after redelivery, got %q", crm.stages["opp-1"])
	}
}

func TestFinalizeLogsCarryDealAndEnvelopeIDs(t *testing.T) {
	out := &syncBuffer{}
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: out, ServiceName: "closepilot"})
	svc := NewFinalizeService(&fakeWriteback{}, &fakeSource{}, nil, log)

	svc.HandleEvent(context.Background(), completedEvent("env-9", "opp-9"))
	svc.Wait()

	logs := out.String()
	if !strings.Contains(logs, `"envelope_id":"env-9"`) {
		t.Fatalf("finalize logs missing envelope_id field:\n%s", logs)
	}
	if !strings.Contains(logs, `"deal_id":"opp-9"`) {
		t.Fatalf("finalize logs missing deal_id field:\n%s", logs)
	}
}

func TestFinalizeMalformedPayload(t *testing.T) {
	crm := &fakeWriteback{}
	svc := NewFinalizeService(crm, &fakeSource{}, nil, logger.NewDefault())

	svc.HandleEvent(context.Background(), []byte("not json at all"))
	svc.Wait()

	if len(crm.attached) != 0 {
		t.Fatalf("expected malformed payload to be dropped, got %v", crm.attached)
	}
}
