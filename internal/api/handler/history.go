package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/logger"
)

// HistorySearcher queries the submitted-deal ledger.
type HistorySearcher interface {
	Search(query string) ([]domain.HistoryRecord, error)
}

// HistoryHandler exposes the deal history ledger.
type HistoryHandler struct {
	ledger HistorySearcher
}

func NewHistoryHandler(ledger HistorySearcher) *HistoryHandler {
	return &HistoryHandler{ledger: ledger}
}

// Search handles GET /api/v1/history. An empty q returns the full
// ledger, newest first.
func (h *HistoryHandler) Search(c *gin.Context) {
	query := c.Query("q")

	records, err := h.ledger.Search(query)
	if err != nil {
		logger.CtxError(c.Request.Context(), "history search failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}
