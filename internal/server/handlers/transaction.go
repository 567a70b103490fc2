package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/application/ledgerservice"
	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/ledger"
)

type TransactionHandler struct {
	ledgerService ledgerservice.ILedgerService
	logger        zerolog.Logger
}

func NewTransactionHandler(ledgerService ledgerservice.ILedgerService, logger zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req domain.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": err.Error(),
		})
		return
	}

	tx, err := h.ledgerService.CreateTransaction(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", req.AccountID).Msg("Failed to create transaction")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Unprocessable Entity",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// TransitionTransaction requests a state change. Business rule violations
// come back as typed errors from the ledger core and map to client errors;
// nothing is partially applied on rejection.
func (h *TransactionHandler) TransitionTransaction(c *gin.Context) {
	id := c.Param("id")

	var req domain.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.ledgerService.Transition(c.Request.Context(), id, req.TargetState, req.Reason)
	if err != nil {
		h.respondTransitionError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) respondTransitionError(c *gin.Context, id string, err error) {
	var (
		illegal *ledger.IllegalTransitionError
		unknown *ledger.UnknownStateError
	)

	switch {
	case errors.Is(err, ledgerservice.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "Transaction not found",
		})
	case errors.As(err, &illegal):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Conflict",
			"message":    "Illegal state transition",
			"from_state": illegal.From,
			"to_state":   illegal.To,
		})
	case errors.As(err, &unknown):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": err.Error(),
		})
	case errors.Is(err, ledgerservice.ErrConflictRetriesExhausted):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Conflict",
			"message": "Concurrent updates in progress, retry the request",
		})
	default:
		h.logger.Error().Err(err).Str("transaction_id", id).Msg("Transition failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to apply transition",
		})
	}
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id := c.Param("id")

	tx, err := h.ledgerService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledgerservice.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Not Found",
				"message": "Transaction not found",
			})
			return
		}
		h.logger.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to retrieve transaction",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) GetHistory(c *gin.Context) {
	id := c.Param("id")

	history, err := h.ledgerService.GetHistory(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledgerservice.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Not Found",
				"message": "Transaction not found",
			})
			return
		}
		h.logger.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction history")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to retrieve transaction history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id": id,
		"history":        history,
		"total":          len(history),
	})
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	state := domain.State(c.Query("state"))
	limit, offset := paging(c)

	txs, err := h.ledgerService.ListTransactions(c.Request.Context(), state, limit, offset)
	if err != nil {
		var unknown *ledger.UnknownStateError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Bad Request",
				"message": err.Error(),
			})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to list transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        len(txs),
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *TransactionHandler) GetAccountTransactions(c *gin.Context) {
	accountID := c.Param("account_id")
	limit, offset := paging(c)

	txs, err := h.ledgerService.ListAccountTransactions(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to list account transactions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to list transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        len(txs),
		"limit":        limit,
		"offset":       offset,
	})
}

func paging(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
