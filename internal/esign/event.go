package esign

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectEvent is the JSON payload delivered to the completion webhook.
// The sender retries on non-200 responses, so parsing failures are the
// caller's problem to swallow, never to surface.
type ConnectEvent struct {
	Event string           `json:"event"`
	Data  ConnectEventData `json:"data"`
}

type ConnectEventData struct {
	EnvelopeID      string           `json:"envelopeId"`
	EnvelopeSummary *EnvelopeSummary `json:"envelopeSummary"`

	// CustomFields at the data level is the legacy payload location,
	// still emitted by older Connect configurations.
	CustomFields *CustomFields `json:"customFields"`
}

type EnvelopeSummary struct {
	Status       string        `json:"status"`
	CustomFields *CustomFields `json:"customFields"`
}

type CustomFields struct {
	TextCustomFields []TextCustomField `json:"textCustomFields"`
}

type TextCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseConnectEvent decodes a webhook body.
func ParseConnectEvent(body []byte) (*ConnectEvent, error) {
	var event ConnectEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("esign: malformed connect payload: %w", err)
	}
	if event.Data.EnvelopeID == "" {
		return nil, fmt.Errorf("esign: connect payload missing envelope id")
	}
	return &event, nil
}

// Status returns the envelope status carried by the event, normalized to
// lower case. Empty when the summary is absent.
func (e *ConnectEvent) Status() string {
	if e.Data.EnvelopeSummary == nil {
		return ""
	}
	return strings.ToLower(e.Data.EnvelopeSummary.Status)
}

// Completed reports whether the event signals full envelope completion.
func (e *ConnectEvent) Completed() bool {
	return e.Status() == StatusCompleted
}

// OpportunityID extracts the embedded opportunity id. The summary-level
// custom fields are checked first, then the legacy data-level location.
// Both locations must be tried; returns "" when neither has it.
func (e *ConnectEvent) OpportunityID() string {
	if e.Data.EnvelopeSummary != nil {
		if id := findOpportunityID(e.Data.EnvelopeSummary.CustomFields); id != "" {
			return id
		}
	}
	return findOpportunityID(e.Data.CustomFields)
}

func findOpportunityID(fields *CustomFields) string {
	if fields == nil {
		return ""
	}
	for _, field := range fields.TextCustomFields {
		if field.Name == opportunityIDField {
			return strings.TrimSpace(field.Value)
		}
	}
	return ""
}
