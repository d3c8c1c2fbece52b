package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/recurring-billing/internal/handlers"
	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

func NewRouter(runState interfaces.RunStateRepository, transactions interfaces.TransactionLogRepository) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": telemetry.ServiceName})
	})

	runStateHandler := handlers.NewRunStateHandler(runState)
	r.GET("/runs/last", runStateHandler.GetLastRun)

	transactionHandler := handlers.NewTransactionHandler(transactions)
	r.GET("/customers/:id/transactions", transactionHandler.ListTransactions)

	return r
}
