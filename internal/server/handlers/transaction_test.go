package handlers

import (
	"bytes"
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

func postTransition(t *testing.T, stub *stubLedgerService, req domain.TransitionRequest) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewTransactionHandler(stub, zerolog.Nop())
	router := gin.New()
	router.POST("/v1/transactions/:id/transitions", handler.TransitionTransaction)

	body, err := json.Marshal(req)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/v1/transactions/tx-1/transitions", bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestTransactionHandler_TransitionSuccess(t *testing.T) {
	stub := &stubLedgerService{
		transitionResult: &ledgerservice.TransitionResult{
			Transaction: &domain.Transaction{ID: "tx-1", State: domain.StatePosted},
		},
	}

	recorder := postTransition(t, stub, domain.TransitionRequest{
		TargetState: domain.StatePosted,
		Reason:      "processor confirmed",
	})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "tx-1", stub.transitionID)
	assert.Equal(t, domain.StatePosted, stub.transitionTarget)
}

func TestTransactionHandler_TransitionErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "illegal transition maps to conflict",
			err:        &ledger.IllegalTransitionError{From: domain.StateFailed, To: domain.StatePending},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown state maps to bad request",
			err:        &ledger.UnknownStateError{State: domain.State("frozen")},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing transaction maps to not found",
			err:        ledgerservice.ErrTransactionNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "exhausted retries map to conflict",
			err:        ledgerservice.ErrConflictRetriesExhausted,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubLedgerService{transitionErr: tc.err}
			recorder := postTransition(t, stub, domain.TransitionRequest{TargetState: domain.StatePending})
			assert.Equal(t, tc.wantStatus, recorder.Code)
		})
	}
}

func TestTransactionHandler_TransitionIllegalPairInBody(t *testing.T) {
	stub := &stubLedgerService{
		transitionErr: &ledger.IllegalTransitionError{From: domain.StateFailed, To: domain.StatePending},
	}

	recorder := postTransition(t, stub, domain.TransitionRequest{TargetState: domain.StatePending})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["from_state"])
	assert.Equal(t, "pending", body["to_state"])
}

func TestTransactionHandler_TransitionRejectsMissingTarget(t *testing.T) {
	stub := &stubLedgerService{}
	recorder := postTransition(t, stub, domain.TransitionRequest{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, stub.transitionID)
}
