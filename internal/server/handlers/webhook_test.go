package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvopay/ledger/internal/application/ledgerservice"
	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/ledger"
)

type stubLedgerService struct {
	transitionTarget domain.State
	transitionReason string
	transitionID     string
	transitionResult *ledgerservice.TransitionResult
	transitionErr    error

	txByReference *domain.Transaction
}

func (s *stubLedgerService) CreateTransaction(_ context.Context, _ *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	return nil, nil
}

func (s *stubLedgerService) Transition(_ context.Context, id string, target domain.State, reason string) (*ledgerservice.TransitionResult, error) {
	s.transitionID = id
	s.transitionTarget = target
	s.transitionReason = reason
	return s.transitionResult, s.transitionErr
}

func (s *stubLedgerService) GetTransaction(_ context.Context, _ string) (*domain.Transaction, error) {
	return nil, ledgerservice.ErrTransactionNotFound
}

func (s *stubLedgerService) GetTransactionByReference(_ context.Context, _ string) (*domain.Transaction, error) {
	if s.txByReference == nil {
		return nil, ledgerservice.ErrTransactionNotFound
	}
	return s.txByReference, nil
}

func (s *stubLedgerService) GetHistory(_ context.Context, _ string) ([]*domain.TransactionHistory, error) {
	return nil, nil
}

func (s *stubLedgerService) ListTransactions(_ context.Context, _ domain.State, _, _ int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (s *stubLedgerService) ListAccountTransactions(_ context.Context, _ string, _, _ int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (s *stubLedgerService) GetBalance(_ context.Context, _ string) (*domain.BalanceSnapshot, error) {
	return nil, nil
}

func (s *stubLedgerService) Reconcile(_ context.Context, _ string) (*domain.DriftReport, error) {
	return nil, nil
}

func (s *stubLedgerService) RunDriftMonitor(_ context.Context) {}

const testSecret = "whsec-test"

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, handler *WebhookHandler, event domain.ProcessorEvent, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	body, err := json.Marshal(event)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/webhooks/processor", handler.HandleProcessorEvent)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	if sign {
		req.Header.Set("X-Webhook-Signature", signBody(body))
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestWebhookHandler_MapsEventToTransition(t *testing.T) {
	stub := &stubLedgerService{
		transitionResult: &ledgerservice.TransitionResult{Transaction: &domain.Transaction{ID: "tx-1"}},
	}
	handler := NewWebhookHandler(stub, testSecret, zerolog.Nop())

	recorder := postWebhook(t, handler, domain.ProcessorEvent{
		EventID:       "evt-1",
		Type:          "transaction.settled",
		TransactionID: "tx-1",
		Reason:        "cleared",
	}, true)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "tx-1", stub.transitionID)
	assert.Equal(t, domain.StateSettled, stub.transitionTarget)
	assert.Equal(t, "cleared", stub.transitionReason)
}

func TestWebhookHandler_ResolvesByReference(t *testing.T) {
	stub := &stubLedgerService{
		transitionResult: &ledgerservice.TransitionResult{Transaction: &domain.Transaction{ID: "tx-9"}},
		txByReference:    &domain.Transaction{ID: "tx-9", Reference: "ref-9"},
	}
	handler := NewWebhookHandler(stub, testSecret, zerolog.Nop())

	recorder := postWebhook(t, handler, domain.ProcessorEvent{
		EventID:   "evt-2",
		Type:      "compliance.hold",
		Reference: "ref-9",
	}, true)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "tx-9", stub.transitionID)
	assert.Equal(t, domain.StateHeldCompliance, stub.transitionTarget)
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	stub := &stubLedgerService{}
	handler := NewWebhookHandler(stub, testSecret, zerolog.Nop())

	recorder := postWebhook(t, handler, domain.ProcessorEvent{
		EventID:       "evt-3",
		Type:          "transaction.settled",
		TransactionID: "tx-1",
	}, false)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Empty(t, stub.transitionID, "transition must not run on unauthenticated events")
}

func TestWebhookHandler_AcknowledgesOutOfOrderEvent(t *testing.T) {
	stub := &stubLedgerService{
		transitionErr: &ledger.IllegalTransitionError{From: domain.StateSettled, To: domain.StatePending},
	}
	handler := NewWebhookHandler(stub, testSecret, zerolog.Nop())

	recorder := postWebhook(t, handler, domain.ProcessorEvent{
		EventID:       "evt-4",
		Type:          "transaction.pending",
		TransactionID: "tx-1",
	}, true)

	// Stale event: acknowledged so the processor stops redelivering.
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "rejected")
}

func TestWebhookHandler_IgnoresUnknownEventType(t *testing.T) {
	stub := &stubLedgerService{}
	handler := NewWebhookHandler(stub, testSecret, zerolog.Nop())

	recorder := postWebhook(t, handler, domain.ProcessorEvent{
		EventID: "evt-5",
		Type:    "payout.scheduled",
	}, true)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "ignored")
	assert.Empty(t, stub.transitionID)
}
