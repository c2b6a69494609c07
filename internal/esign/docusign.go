package esign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ankit/closepilot/internal/config"
)

// Envelope status values reported by the signature provider.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusVoided    = "voided"
)

// opportunityIDField is the envelope text custom field that carries the
// originating CRM opportunity id back through the completion webhook.
const opportunityIDField = "opportunity_id"

// Client talks to the DocuSign eSignature REST API.
type Client struct {
	http      *resty.Client
	baseURI   string
	accountID string
}

// NewClient builds a DocuSign client from configuration.
func NewClient(cfg config.DocuSignConfig) *Client {
	http := resty.New()
	http.SetHeader("Content-Type", "application/json")
	http.SetAuthToken(cfg.AccessToken)
	http.SetTimeout(60 * time.Second)

	return &Client{
		http:      http,
		baseURI:   strings.TrimSuffix(cfg.BaseURI, "/"),
		accountID: cfg.AccountID,
	}
}

// EnvelopeRequest describes one envelope to create from a server template.
type EnvelopeRequest struct {
	TemplateID     string
	SignerName     string
	SignerEmail    string
	SignerRole     string
	OpportunityID  string
	EmailSubject   string
}

type templateRole struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleName string `json:"roleName"`
}

type textCustomFieldDef struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Show  string `json:"show"`
}

type envelopeDefinition struct {
	TemplateID    string         `json:"templateId"`
	Status        string         `json:"status"`
	EmailSubject  string         `json:"emailSubject,omitempty"`
	TemplateRoles []templateRole `json:"templateRoles"`
	CustomFields  struct {
		TextCustomFields []textCustomFieldDef `json:"textCustomFields"`
	} `json:"customFields"`
}

type envelopeSummaryResponse struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	ErrorCode  string `json:"errorCode"`
}

// SendFromTemplate creates and immediately sends an envelope from a
// server template, embedding the opportunity id as a text custom field
// so the completion webhook can be reconciled later.
func (c *Client) SendFromTemplate(ctx context.Context, req EnvelopeRequest) (string, error) {
	def := envelopeDefinition{
		TemplateID:   req.TemplateID,
		Status:       StatusSent,
		EmailSubject: req.EmailSubject,
		TemplateRoles: []templateRole{{
			Email:    req.SignerEmail,
			Name:     req.SignerName,
			RoleName: req.SignerRole,
		}},
	}
	def.CustomFields.TextCustomFields = []textCustomFieldDef{{
		Name:  opportunityIDField,
		Value: req.OpportunityID,
		Show:  "false",
	}}

	var result envelopeSummaryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(def).
		SetResult(&result).
		Post(fmt.Sprintf("%s/v2.1/accounts/%s/envelopes", c.baseURI, c.accountID))
	if err != nil {
		return "", fmt.Errorf("docusign: envelope create failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		if result.ErrorCode != "" {
			return "", fmt.Errorf("docusign: envelope create rejected: %s: %s", result.ErrorCode, result.Message)
		}
		return "", fmt.Errorf("docusign: envelope create returned HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	if result.EnvelopeID == "" {
		return "", fmt.Errorf("docusign: envelope create response missing envelope id")
	}
	return result.EnvelopeID, nil
}

// GetEnvelopeStatus returns the current envelope status (sent, delivered,
// completed, ...).
func (c *Client) GetEnvelopeStatus(ctx context.Context, envelopeID string) (string, error) {
	var result envelopeSummaryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("%s/v2.1/accounts/%s/envelopes/%s", c.baseURI, c.accountID, envelopeID))
	if err != nil {
		return "", fmt.Errorf("docusign: status lookup failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("docusign: status lookup returned HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	return result.Status, nil
}

// DownloadSigned fetches the combined signed document for the envelope
// as PDF bytes.
func (c *Client) DownloadSigned(ctx context.Context, envelopeID string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/pdf").
		Get(fmt.Sprintf("%s/v2.1/accounts/%s/envelopes/%s/documents/combined", c.baseURI, c.accountID, envelopeID))
	if err != nil {
		return nil, fmt.Errorf("docusign: document download failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("docusign: document download returned HTTP %d", resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("docusign: document download returned empty body")
	}
	return resp.Body(), nil
}
