package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/logger"
)

// OpportunityReader lists open opportunities and edits contact records.
type OpportunityReader interface {
	ListOpenOpportunities(ctx context.Context) ([]domain.OpportunitySummary, error)
	UpdateContactEmail(ctx context.Context, contactID, email string) error
}

// OpportunityHandler exposes CRM lookups used by the chat front-end.
type OpportunityHandler struct {
	crm OpportunityReader
}

func NewOpportunityHandler(crm OpportunityReader) *OpportunityHandler {
	return &OpportunityHandler{crm: crm}
}

// List handles GET /api/v1/opportunities.
func (h *OpportunityHandler) List(c *gin.Context) {
	opportunities, err := h.crm.ListOpenOpportunities(c.Request.Context())
	if err != nil {
		logger.CtxError(c.Request.Context(), "failed to list open opportunities: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query opportunities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"opportunities": opportunities,
		"count":         len(opportunities),
	})
}

// UpdateContactRequest is the body of POST /update-contact.
type UpdateContactRequest struct {
	ContactID string `json:"contact_id"`
	NewEmail  string `json:"new_email"`
}

// UpdateContact handles POST /update-contact.
func (h *OpportunityHandler) UpdateContact(c *gin.Context) {
	var req UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.ContactID == "" || req.NewEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contact_id and new_email are required"})
		return
	}

	if err := h.crm.UpdateContactEmail(c.Request.Context(), req.ContactID, req.NewEmail); err != nil {
		logger.CtxError(c.Request.Context(), "failed to update contact email: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update contact"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
