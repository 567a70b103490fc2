package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/application/ledgerservice"
	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/ledger"
)

// eventStates maps processor event types to lifecycle target states.
// Unknown event types are acknowledged and skipped so the processor does
// not retry events this service does not care about.
var eventStates = map[string]domain.State{
	"transaction.pending":    domain.StatePending,
	"transaction.processing": domain.StateProcessing,
	"transaction.posted":     domain.StatePosted,
	"transaction.settled":    domain.StateSettled,
	"transaction.returned":   domain.StateReturned,
	"transaction.reversed":   domain.StateReversed,
	"payment.failed":         domain.StateFailed,
	"compliance.hold":        domain.StateHeldCompliance,
	"compliance.released":    domain.StatePending,
	"dispute.opened":         domain.StateDisputed,
	"dispute.won":            domain.StateSettled,
	"dispute.lost":           domain.StateReversed,
	"refund.issued":          domain.StateRefunded,
	"adjustment.posted":      domain.StateAdjusted,
}

type WebhookHandler struct {
	ledgerService ledgerservice.ILedgerService
	secret        string
	logger        zerolog.Logger
}

func NewWebhookHandler(ledgerService ledgerservice.ILedgerService, secret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledgerService: ledgerService,
		secret:        secret,
		logger:        logger,
	}
}

// HandleProcessorEvent ingests payment-processor callbacks. Delivery is
// at-least-once and unordered; duplicates land on the idempotent no-op
// rule and stale or out-of-order events are rejected by the transition
// table, answered with 200 so the processor stops redelivering them.
func (h *WebhookHandler) HandleProcessorEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "Failed to read request body",
		})
		return
	}

	if !h.validSignature(body, c.GetHeader("X-Webhook-Signature")) {
		h.logger.Warn().Str("client_ip", c.ClientIP()).Msg("Webhook with invalid signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Invalid webhook signature",
		})
		return
	}

	var event domain.ProcessorEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": err.Error(),
		})
		return
	}

	target, ok := eventStates[event.Type]
	if !ok {
		h.logger.Info().Str("event_id", event.EventID).Str("type", event.Type).Msg("Ignoring unhandled webhook event type")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	transactionID := event.TransactionID
	if transactionID == "" && event.Reference != "" {
		tx, err := h.ledgerService.GetTransactionByReference(c.Request.Context(), event.Reference)
		if err == nil && tx != nil {
			transactionID = tx.ID
		}
	}
	if transactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "Event carries no transaction reference",
		})
		return
	}

	result, err := h.ledgerService.Transition(c.Request.Context(), transactionID, target, event.Reason)
	if err != nil {
		h.respondEventError(c, &event, err)
		return
	}

	if result.NoOp {
		h.logger.Info().
			Str("event_id", event.EventID).
			Str("transaction_id", transactionID).
			Msg("Duplicate webhook delivery resolved as no-op")
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "processed",
		"no_op":  result.NoOp,
	})
}

func (h *WebhookHandler) respondEventError(c *gin.Context, event *domain.ProcessorEvent, err error) {
	var illegal *ledger.IllegalTransitionError

	switch {
	case errors.Is(err, ledgerservice.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "Transaction not found",
		})
	case errors.As(err, &illegal):
		// Out-of-order delivery of an already-superseded event. The state
		// machine already holds the truth; acknowledge so the processor
		// stops retrying.
		h.logger.Warn().
			Str("event_id", event.EventID).
			Str("type", event.Type).
			Str("from_state", string(illegal.From)).
			Str("to_state", string(illegal.To)).
			Msg("Webhook event rejected by transition table")
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	default:
		h.logger.Error().Err(err).Str("event_id", event.EventID).Msg("Webhook event processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to process event",
		})
	}
}

func (h *WebhookHandler) validSignature(body []byte, signature string) bool {
	if h.secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
