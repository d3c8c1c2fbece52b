package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

const maxTransactionLimit = 500

type TransactionHandler struct {
	repo interfaces.TransactionLogRepository
}

func NewTransactionHandler(repo interfaces.TransactionLogRepository) *TransactionHandler {
	return &TransactionHandler{repo: repo}
}

type transactionView struct {
	ID            int64  `json:"id"`
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
	BilledAmount  string `json:"billed_amount"`
	ResponseCode  int    `json:"response_code"`
	ApprovalCode  string `json:"approval_code"`
	ReasonCode    int    `json:"reason_code"`
	ReasonText    string `json:"reason_text"`
	CVVCode       string `json:"cvv_code"`
	CreatedAt     string `json:"created_at"`
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	customerID := c.Param("id")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTransactionLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := h.repo.ListByCustomer(c.Request.Context(), customerID, limit)
	if err != nil {
		telemetry.Logger.Error("Error listing transactions",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}

	views := make([]transactionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, transactionView{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			ProductID:     e.ProductID,
			BilledAmount:  e.BilledAmount.StringFixed(2),
			ResponseCode:  e.ResponseCode,
			ApprovalCode:  e.ApprovalCode,
			ReasonCode:    e.ReasonCode,
			ReasonText:    e.ReasonText,
			CVVCode:       e.CVVCode,
			CreatedAt:     e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_id":  customerID,
		"transactions": views,
	})
}
