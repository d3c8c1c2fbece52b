package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

type RunStateHandler struct {
	repo interfaces.RunStateRepository
}

func NewRunStateHandler(repo interfaces.RunStateRepository) *RunStateHandler {
	return &RunStateHandler{repo: repo}
}

func (h *RunStateHandler) GetLastRun(c *gin.Context) {
	state, err := h.repo.LastRun(c.Request.Context())
	if err != nil {
		telemetry.Logger.Error("Error fetching last run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch last run"})
		return
	}

	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Billing has never run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"last_run_at": state.LastRunAt,
		"updated_at":  state.UpdatedAt,
	})
}
