package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ankit/closepilot/internal/registry"
	"github.com/ankit/closepilot/internal/service"
)

// BatchStarter dispatches a closing batch and returns its job id.
type BatchStarter interface {
	StartBatch(ctx context.Context, req service.BatchRequest) (string, error)
}

// ClosingHandler exposes batch submission and job status polling.
type ClosingHandler struct {
	closing  BatchStarter
	registry *registry.Registry
}

func NewClosingHandler(closing BatchStarter, reg *registry.Registry) *ClosingHandler {
	return &ClosingHandler{closing: closing, registry: reg}
}

// StartClosingRequest is the body of POST /start-closing. TemplateID and
// SignerRole are optional overrides of the configured defaults.
type StartClosingRequest struct {
	OpportunityIDs []string `json:"opportunity_ids"`
	TemplateID     string   `json:"template_id"`
	SignerRole     string   `json:"signer_role"`
}

// StartClosing handles POST /start-closing. The batch runs in the
// background; the response carries the job id to poll.
func (h *ClosingHandler) StartClosing(c *gin.Context) {
	var req StartClosingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	jobID, err := h.closing.StartBatch(c.Request.Context(), service.BatchRequest{
		DealIDs:    req.OpportunityIDs,
		TemplateID: req.TemplateID,
		SignerRole: req.SignerRole,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "opportunity_ids must not be empty"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "started",
		"job_id": jobID,
	})
}

// TaskStatus handles GET /task-status/:job_id. Unknown job ids return an
// empty object rather than an error: the poller may race job creation or
// outlive a restart, and neither should look like a failure.
func (h *ClosingHandler) TaskStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	snapshot, ok := h.registry.Snapshot(jobID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
