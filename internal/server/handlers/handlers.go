package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/application/ledgerservice"
	"github.com/arvopay/ledger/internal/server/middleware"
	"github.com/arvopay/ledger/internal/server/websocket"
	"github.com/arvopay/ledger/pkg/config"
)

type Handlers struct {
	LedgerSvc ledgerservice.ILedgerService
	Logger    zerolog.Logger
	Config    *config.Config
	WsHub     *websocket.WsHub
}

func New(ledgerSvc ledgerservice.ILedgerService, logger zerolog.Logger, config *config.Config, wsHub *websocket.WsHub) *Handlers {
	return &Handlers{
		LedgerSvc: ledgerSvc,
		Logger:    logger,
		Config:    config,
		WsHub:     wsHub,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	transactionHandler := NewTransactionHandler(h.LedgerSvc, h.Logger)
	balanceHandler := NewBalanceHandler(h.LedgerSvc, h.Logger)
	webhookHandler := NewWebhookHandler(h.LedgerSvc, h.Config.Security.WebhookSecret, h.Logger)
	streamHandler := NewStreamHandler(h.WsHub, h.Config.WebSocket, h.Logger)
	healthHandler := NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Processor callbacks authenticate by HMAC signature, not bearer token.
	router.POST("/webhooks/processor", webhookHandler.HandleProcessorEvent)

	v1 := router.Group("/v1")
	v1.Use(middleware.JWTAuth(h.Config.Security.JWTSecret))
	{
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", transactionHandler.CreateTransaction)
			transactions.GET("", transactionHandler.ListTransactions)
			transactions.GET("/:id", transactionHandler.GetTransaction)
			transactions.GET("/:id/history", transactionHandler.GetHistory)
			transactions.POST("/:id/transitions", transactionHandler.TransitionTransaction)
		}

		accounts := v1.Group("/accounts/:account_id")
		{
			accounts.GET("/transactions", transactionHandler.GetAccountTransactions)
			accounts.GET("/balance", balanceHandler.GetBalance)
			accounts.POST("/reconcile", balanceHandler.Reconcile)
		}

		v1.GET("/stream", streamHandler.HandleConnection)
	}

	internal := router.Group("/internal")
	internal.Use(middleware.APIKeyAuth(h.Config.Security.APIKey))
	{
		internal.POST("/transactions/:id/transitions", transactionHandler.TransitionTransaction)
		internal.POST("/accounts/:account_id/reconcile", balanceHandler.Reconcile)
	}
}
