package crm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/domain"
)

// Client talks to the Salesforce REST API. One client is shared by all
// workers; resty's transport is safe for concurrent use.
type Client struct {
	http        *resty.Client
	instanceURL string
	apiVersion  string
	cfg         config.SalesforceConfig
}

// NewClient builds a Salesforce client. Call Login before first use.
func NewClient(cfg config.SalesforceConfig) *Client {
	http := resty.New()
	http.SetHeader("Content-Type", "application/json")
	http.SetTimeout(30 * time.Second)

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v59.0"
	}

	return &Client{
		http:        http,
		instanceURL: strings.TrimSuffix(cfg.InstanceURL, "/"),
		apiVersion:  apiVersion,
		cfg:         cfg,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// Login performs the username-password OAuth flow and stores the access
// token on the underlying client. The security token is appended to the
// password as Salesforce requires for API logins.
func (c *Client) Login(ctx context.Context) error {
	var tok tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"grant_type":    "password",
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"username":      c.cfg.Username,
			"password":      c.cfg.Password + c.cfg.SecurityToken,
		}).
		SetResult(&tok).
		Post(c.instanceURL + "/services/oauth2/token")
	if err != nil {
		return fmt.Errorf("salesforce: login request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		if tok.Error != "" {
			return fmt.Errorf("salesforce: login rejected: %s: %s", tok.Error, tok.ErrorDesc)
		}
		return fmt.Errorf("salesforce: login rejected: HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("salesforce: login response missing access token")
	}

	c.http.SetAuthToken(tok.AccessToken)
	if tok.InstanceURL != "" {
		c.instanceURL = strings.TrimSuffix(tok.InstanceURL, "/")
	}
	return nil
}

type queryResponse struct {
	TotalSize int                      `json:"totalSize"`
	Done      bool                     `json:"done"`
	Records   []map[string]interface{} `json:"records"`
}

func (c *Client) query(ctx context.Context, soql string) (*queryResponse, error) {
	var result queryResponse
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s",
		c.instanceURL, c.apiVersion, url.QueryEscape(soql))

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("salesforce: query failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("salesforce: query returned HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	return &result, nil
}

// GetDeal fetches the opportunity, its primary contact, and its line
// items in one query. An unknown id or a contact-less opportunity is an
// error; the worker pipeline cannot proceed without a signer.
func (c *Client) GetDeal(ctx context.Context, opportunityID string) (*domain.Deal, error) {
	id := strings.TrimSpace(opportunityID)

	soql := fmt.Sprintf(`SELECT Id, Name, Amount, StageName, Account.Name,
		(SELECT Contact.Name, Contact.Email FROM OpportunityContactRoles WHERE IsPrimary = true LIMIT 1),
		(SELECT PricebookEntry.Product2.Name, Quantity, UnitPrice, TotalPrice FROM OpportunityLineItems)
		FROM Opportunity WHERE Id = '%s'`, soqlEscape(id))

	result, err := c.query(ctx, soql)
	if err != nil {
		return nil, err
	}
	// Gate on the records themselves, not totalSize: the two can
	// disagree in a truncated or filtered response.
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("salesforce: no opportunity found with id %s", id)
	}

	record := result.Records[0]
	deal := &domain.Deal{
		OpportunityID: id,
		Name:          asString(record["Name"]),
		Amount:        asFloat(record["Amount"]),
		Stage:         asString(record["StageName"]),
	}
	if account, ok := record["Account"].(map[string]interface{}); ok {
		deal.AccountName = asString(account["Name"])
	}

	roles := subqueryRecords(record["OpportunityContactRoles"])
	if len(roles) == 0 {
		return nil, fmt.Errorf("salesforce: no primary contact found for opportunity %s", deal.Name)
	}
	if contact, ok := roles[0]["Contact"].(map[string]interface{}); ok {
		deal.ContactName = asString(contact["Name"])
		deal.ContactEmail = asString(contact["Email"])
	}
	if deal.ContactEmail == "" {
		return nil, fmt.Errorf("salesforce: primary contact for opportunity %s has no email", deal.Name)
	}

	for _, line := range subqueryRecords(record["OpportunityLineItems"]) {
		item := domain.LineItem{
			Quantity:   asFloat(line["Quantity"]),
			UnitPrice:  asFloat(line["UnitPrice"]),
			TotalPrice: asFloat(line["TotalPrice"]),
		}
		if entry, ok := line["PricebookEntry"].(map[string]interface{}); ok {
			if product, ok := entry["Product2"].(map[string]interface{}); ok {
				item.ProductName = asString(product["Name"])
			}
		}
		deal.LineItems = append(deal.LineItems, item)
	}

	return deal, nil
}

// ListOpenOpportunities returns opportunities not yet closed, newest
// close date first.
func (c *Client) ListOpenOpportunities(ctx context.Context) ([]domain.OpportunitySummary, error) {
	soql := `SELECT Id, Name, Amount, StageName, CloseDate, Account.Name
		FROM Opportunity WHERE IsClosed = false ORDER BY CloseDate DESC LIMIT 200`

	result, err := c.query(ctx, soql)
	if err != nil {
		return nil, err
	}

	opportunities := make([]domain.OpportunitySummary, 0, len(result.Records))
	for _, record := range result.Records {
		opp := domain.OpportunitySummary{
			ID:        asString(record["Id"]),
			Name:      asString(record["Name"]),
			Amount:    asFloat(record["Amount"]),
			Stage:     asString(record["StageName"]),
			CloseDate: asString(record["CloseDate"]),
		}
		if account, ok := record["Account"].(map[string]interface{}); ok {
			opp.AccountName = asString(account["Name"])
		}
		opportunities = append(opportunities, opp)
	}
	return opportunities, nil
}

// SetStage updates the opportunity stage.
func (c *Client) SetStage(ctx context.Context, opportunityID, stage string) error {
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/Opportunity/%s",
		c.instanceURL, c.apiVersion, strings.TrimSpace(opportunityID))

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"StageName": strings.TrimSpace(stage)}).
		Patch(endpoint)
	if err != nil {
		return fmt.Errorf("salesforce: stage update failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("salesforce: stage update returned HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	return nil
}

type createResponse struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// AttachDocument uploads file content as a ContentVersion published
// against the record, which is how files appear on an opportunity.
func (c *Client) AttachDocument(ctx context.Context, recordID string, content []byte, fileName string) error {
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/ContentVersion",
		c.instanceURL, c.apiVersion)

	var result createResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"Title":                  fileName,
			"PathOnClient":           fileName,
			"VersionData":            base64.StdEncoding.EncodeToString(content),
			"FirstPublishLocationId": recordID,
		}).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("salesforce: attach failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("salesforce: attach returned HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	if !result.Success && result.ID == "" {
		return fmt.Errorf("salesforce: attach rejected: %v", result.Errors)
	}
	return nil
}

// UpdateContactEmail changes a contact's email address.
func (c *Client) UpdateContactEmail(ctx context.Context, contactID, email string) error {
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/Contact/%s",
		c.instanceURL, c.apiVersion, strings.TrimSpace(contactID))

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"Email": strings.TrimSpace(email)}).
		Patch(endpoint)
	if err != nil {
		return fmt.Errorf("salesforce: contact update failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("salesforce: contact update returned HTTP %d: %s", resp.StatusCode(), resp.Body())
	}
	return nil
}

// soqlEscape quotes single quotes and backslashes so ids interpolated
// into SOQL cannot break out of the literal.
func soqlEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func subqueryRecords(v interface{}) []map[string]interface{} {
	sub, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := sub["records"].([]interface{})
	if !ok {
		return nil
	}
	records := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]interface{}); ok {
			records = append(records, m)
		}
	}
	return records
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
