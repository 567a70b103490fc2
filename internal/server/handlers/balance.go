package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/application/ledgerservice"
	"github.com/arvopay/ledger/internal/ledger"
)

type BalanceHandler struct {
	ledgerService ledgerservice.ILedgerService
	logger        zerolog.Logger
}

func NewBalanceHandler(ledgerService ledgerservice.ILedgerService, logger zerolog.Logger) *BalanceHandler {
	return &BalanceHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

func (h *BalanceHandler) GetBalance(c *gin.Context) {
	accountID := c.Param("account_id")

	snapshot, err := h.ledgerService.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to get balance")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to retrieve balance",
		})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "No balance recorded for account",
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// Reconcile recomputes the account balance from its transactions and
// reports (and heals) any drift against the stored snapshot.
func (h *BalanceHandler) Reconcile(c *gin.Context) {
	accountID := c.Param("account_id")

	report, err := h.ledgerService.Reconcile(c.Request.Context(), accountID)
	if err != nil {
		var mismatch *ledger.CurrencyMismatchError
		if errors.As(err, &mismatch) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "Unprocessable Entity",
				"message": err.Error(),
			})
			return
		}
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to reconcile account")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to reconcile account",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}
