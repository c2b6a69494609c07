package esign

import "testing"

func TestParseConnectEventMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<xml>nope</xml>`},
		{name: "empty object", body: `{}`},
		{name: "missing envelope id", body: `{"data":{"envelopeSummary":{"status":"completed"}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseConnectEvent([]byte(tc.body)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestOpportunityIDPrimaryLocation(t *testing.T) {
	body := `{
		"event": "envelope-completed",
		"data": {
			"envelopeId": "env-123",
			"envelopeSummary": {
				"status": "Completed",
				"customFields": {
					"textCustomFields": [
						{"name": "other_field", "value": "x"},
						{"name": "opportunity_id", "value": "006ABC"}
					]
				}
			}
		}
	}`

	event, err := ParseConnectEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !event.Completed() {
		t.Error("expected Completed()=true for status Completed")
	}
	if got := event.OpportunityID(); got != "006ABC" {
		t.Errorf("expected opportunity id 006ABC, got %q", got)
	}
}

func TestOpportunityIDLegacyFallback(t *testing.T) {
	body := `{
		"data": {
			"envelopeId": "env-456",
			"envelopeSummary": {"status": "completed"},
			"customFields": {
				"textCustomFields": [
					{"name": "opportunity_id", "value": " 006LEGACY "}
				]
			}
		}
	}`

	event, err := ParseConnectEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := event.OpportunityID(); got != "006LEGACY" {
		t.Errorf("expected trimmed legacy opportunity id, got %q", got)
	}
}

func TestOpportunityIDPrimaryWinsOverLegacy(t *testing.T) {
	body := `{
		"data": {
			"envelopeId": "env-789",
			"envelopeSummary": {
				"status": "completed",
				"customFields": {
					"textCustomFields": [{"name": "opportunity_id", "value": "PRIMARY"}]
				}
			},
			"customFields": {
				"textCustomFields": [{"name": "opportunity_id", "value": "LEGACY"}]
			}
		}
	}`

	event, err := ParseConnectEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := event.OpportunityID(); got != "PRIMARY" {
		t.Errorf("expected summary-level field to win, got %q", got)
	}
}

func TestOpportunityIDMissing(t *testing.T) {
	body := `{"data": {"envelopeId": "env-000", "envelopeSummary": {"status": "completed"}}}`

	event, err := ParseConnectEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := event.OpportunityID(); got != "" {
		t.Errorf("expected empty opportunity id, got %q", got)
	}
}

func TestStatusWithoutSummary(t *testing.T) {
	body := `{"data": {"envelopeId": "env-1"}}`

	event, err := ParseConnectEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Status() != "" || event.Completed() {
		t.Errorf("expected empty status and not completed, got %q", event.Status())
	}
}
