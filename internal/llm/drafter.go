package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/prompts"
)

// Drafter generates SOW content and classifies chat intents via an
// OpenAI-compatible chat completions API.
type Drafter struct {
	client   *resty.Client
	model    string
	endpoint string
	enabled  bool
}

// NewDrafter creates a drafting client. A nil or disabled config yields
// a Drafter that fails SOW drafting and falls back to keyword intent
// classification.
func NewDrafter(cfg *config.LLMConfig) *Drafter {
	if cfg == nil || !cfg.Enabled {
		return &Drafter{enabled: false}
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Drafter{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
		enabled:  true,
	}
}

// IsEnabled returns whether the drafting agent is configured.
func (d *Drafter) IsEnabled() bool {
	return d.enabled
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (d *Drafter) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: maxTokens,
	}

	var resp chatResponse
	httpResp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil {
			return "", fmt.Errorf("llm: HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("llm: HTTP %d: %s", httpResp.StatusCode(), httpResp.Body())
	}
	if resp.Error != nil {
		return "", fmt.Errorf("llm: API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// DraftSOW asks the model for SOW content for the deal and validates the
// structured result. Any non-conforming payload is an error; the worker
// treats it as a pipeline failure for that deal only.
func (d *Drafter) DraftSOW(ctx context.Context, deal *domain.Deal) (*domain.SOWDraft, error) {
	if !d.enabled {
		return nil, fmt.Errorf("llm: drafting agent is not configured")
	}

	dealJSON, err := json.MarshalIndent(deal, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("llm: failed to serialize deal: %w", err)
	}

	content, err := d.complete(ctx, prompts.SOWSystemPrompt, prompts.SOWUserPrompt+string(dealJSON), 1500)
	if err != nil {
		return nil, err
	}

	var draft domain.SOWDraft
	if err := json.Unmarshal(extractJSON(content), &draft); err != nil {
		return nil, fmt.Errorf("llm: malformed draft payload: %w", err)
	}
	if err := validateDraft(&draft, deal); err != nil {
		return nil, err
	}
	return &draft, nil
}

// validateDraft rejects structurally empty drafts and backfills fields
// the renderer can recover from the deal itself.
func validateDraft(draft *domain.SOWDraft, deal *domain.Deal) error {
	if draft.ProjectName == "" {
		draft.ProjectName = deal.Name
	}
	if draft.ClientName == "" {
		draft.ClientName = deal.AccountName
	}
	if draft.ProjectName == "" {
		return fmt.Errorf("llm: draft has no project name")
	}
	if len(draft.ScopeItems) == 0 {
		return fmt.Errorf("llm: draft has no scope items")
	}
	if len(draft.Milestones) == 0 {
		return fmt.Errorf("llm: draft has no milestones")
	}
	return nil
}

// Classify routes a chat message into a tagged decision. When the agent
// is disabled or returns garbage, a deterministic keyword fallback keeps
// the front-end usable.
func (d *Drafter) Classify(ctx context.Context, message string) domain.Decision {
	if !d.enabled {
		return fallbackClassify(message)
	}

	content, err := d.complete(ctx, prompts.IntentSystemPrompt, message, 300)
	if err != nil {
		return fallbackClassify(message)
	}

	var decision domain.Decision
	if err := json.Unmarshal(extractJSON(content), &decision); err != nil {
		return fallbackClassify(message)
	}

	switch decision.Kind {
	case domain.DecisionFetch, domain.DecisionChat:
		return decision
	case domain.DecisionExecute:
		if len(decision.DealIDs) == 0 {
			decision.DealIDs = extractOpportunityIDs(message)
		}
		if len(decision.DealIDs) == 0 {
			// Execute with nothing to execute: degrade to fetch so
			// the user can pick a deal.
			return domain.Decision{Kind: domain.DecisionFetch}
		}
		return decision
	default:
		return fallbackClassify(message)
	}
}

// opportunityIDPattern matches Salesforce Opportunity ids (006 prefix,
// 15 or 18 characters).
var opportunityIDPattern = regexp.MustCompile(`\b006[A-Za-z0-9]{12}(?:[A-Za-z0-9]{3})?\b`)

func extractOpportunityIDs(message string) []string {
	return opportunityIDPattern.FindAllString(message, -1)
}

func fallbackClassify(message string) domain.Decision {
	lower := strings.ToLower(message)

	if ids := extractOpportunityIDs(message); len(ids) > 0 &&
		(strings.Contains(lower, "close") || strings.Contains(lower, "send") || strings.Contains(lower, "sign")) {
		return domain.Decision{Kind: domain.DecisionExecute, DealIDs: ids}
	}

	for _, keyword := range []string{"open opportunities", "list", "show", "pipeline", "deals"} {
		if strings.Contains(lower, keyword) {
			return domain.Decision{Kind: domain.DecisionFetch}
		}
	}

	return domain.Decision{
		Kind:  domain.DecisionChat,
		Reply: "I can list open opportunities or start closing a deal if you give me its opportunity id.",
	}
}

// extractJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON object.
func extractJSON(content string) []byte {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return []byte(trimmed)
}
