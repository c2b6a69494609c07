package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/service"
)

// IntentClassifier decides what to do with a free-form user message.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) domain.Decision
}

// ChatHandler is the conversational front door: messages are classified
// into an intent and routed to the pipeline or the CRM, never executed
// as free text.
type ChatHandler struct {
	classifier IntentClassifier
	crm        OpportunityReader
	closing    BatchStarter
}

func NewChatHandler(classifier IntentClassifier, crm OpportunityReader, closing BatchStarter) *ChatHandler {
	return &ChatHandler{classifier: classifier, crm: crm, closing: closing}
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	ctx := c.Request.Context()
	decision := h.classifier.Classify(ctx, req.Message)
	logger.CtxInfo(ctx, "chat message classified as %s", decision.Kind)

	switch decision.Kind {
	case domain.DecisionFetch:
		opportunities, err := h.crm.ListOpenOpportunities(ctx)
		if err != nil {
			logger.CtxError(ctx, "failed to list open opportunities: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query opportunities"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"action":        "fetch",
			"reply":         fmt.Sprintf("Found %d open opportunities.", len(opportunities)),
			"opportunities": opportunities,
		})

	case domain.DecisionExecute:
		jobID, err := h.closing.StartBatch(ctx, service.BatchRequest{DealIDs: decision.DealIDs})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"action": "execute",
			"reply":  fmt.Sprintf("Started closing %d deal(s).", len(decision.DealIDs)),
			"job_id": jobID,
		})

	default:
		c.JSON(http.StatusOK, gin.H{
			"action": "chat",
			"reply":  decision.Reply,
		})
	}
}
