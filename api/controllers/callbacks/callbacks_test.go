package callbacks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/reconciler"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

type stubHandler struct {
	got     []gateway.Result
	outcome reconciler.Outcome
	err     error
}

func (s *stubHandler) Handle(_ context.Context, result gateway.Result) (reconciler.Outcome, error) {
	s.got = append(s.got, result)
	return s.outcome, s.err
}

const stkPayload = `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",
"CallbackMetadata":{"Item":[{"Name":"Amount","Value":150},{"Name":"MpesaReceiptNumber","Value":"QK12ABC"},
{"Name":"TransactionDate","Value":20250106093000},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

const b2cPayload = `{"Result":{"ResultType":0,"ResultCode":0,"ResultDesc":"ok","OriginatorConversationID":"oc-1",
"ConversationID":"c-1","TransactionID":"QK99XYZ","ResultParameters":{"ResultParameter":[{"Key":"TransactionAmount","Value":80}]}}}`

func nairobi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestSTKCallbackDefaultsToDeposit(t *testing.T) {
	h := &stubHandler{outcome: reconciler.OutcomeCompleted}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/stk", strings.NewReader(stkPayload))
	rec := httptest.NewRecorder()

	STK(h, nairobi(t), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(h.got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(h.got))
	}
	if h.got[0].Kind != enums.TransferKindDeposit {
		t.Fatalf("expected deposit kind, got %s", h.got[0].Kind)
	}
	if h.got[0].Code != "ws_CO_1" || h.got[0].Receipt != "QK12ABC" {
		t.Fatalf("unexpected result %+v", h.got[0])
	}

	var envelope struct {
		Data struct {
			ResultCode int    `json:"ResultCode"`
			Outcome    string `json:"outcome"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Outcome != string(reconciler.OutcomeCompleted) {
		t.Fatalf("unexpected outcome %q", envelope.Data.Outcome)
	}
}

func TestSTKCallbackHonoursRegistrationFeeKind(t *testing.T) {
	h := &stubHandler{outcome: reconciler.OutcomeCompleted}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/stk?kind=registration_fee", strings.NewReader(stkPayload))

	STK(h, nairobi(t), nil).ServeHTTP(httptest.NewRecorder(), req)

	if len(h.got) != 1 || h.got[0].Kind != enums.TransferKindRegistrationFee {
		t.Fatalf("expected registration fee result, got %+v", h.got)
	}
}

func TestSTKCallbackRejectsUnsupportedKind(t *testing.T) {
	h := &stubHandler{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/stk?kind=withdrawal", strings.NewReader(stkPayload))
	rec := httptest.NewRecorder()

	STK(h, nairobi(t), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if len(h.got) != 0 {
		t.Fatal("handler should not run for an unsupported kind")
	}
}

func TestB2CResultPassesWithdrawal(t *testing.T) {
	h := &stubHandler{outcome: reconciler.OutcomeDuplicate}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/b2c/result", strings.NewReader(b2cPayload))
	rec := httptest.NewRecorder()

	B2CResult(h, nairobi(t), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(h.got) != 1 || h.got[0].Kind != enums.TransferKindWithdrawal || h.got[0].Code != "oc-1" {
		t.Fatalf("unexpected results %+v", h.got)
	}
}

func TestCallbackSurfacesReconcileErrors(t *testing.T) {
	h := &stubHandler{err: errors.New("db down")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/b2c/result", strings.NewReader(b2cPayload))
	rec := httptest.NewRecorder()

	B2CResult(h, nairobi(t), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the gateway retries, got %d", rec.Code)
	}
}

func TestCallbackRejectsMalformedPayload(t *testing.T) {
	h := &stubHandler{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/stk", strings.NewReader(`{"Body":`))
	rec := httptest.NewRecorder()

	STK(h, nairobi(t), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
