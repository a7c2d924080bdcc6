package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"salondesk/backend/internal/cache"
	"salondesk/backend/internal/domain"
	"salondesk/backend/internal/service"
	"salondesk/backend/internal/settlement"
	"salondesk/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	rate, err := decimal.NewFromString("0.15")
	if err != nil {
		t.Fatalf("parse rate: %v", err)
	}
	calc := settlement.NewCalculator(rate, 1, 10)
	svc := service.New(repo, calc, cache.NoopBalanceCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON fires an authenticated JSON request through the full handler chain.
func doJSON(t *testing.T, api *API, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleClients_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/cashups", token, "", domain.CashUpOpenRequest{
		OpeningFloatCents: 10000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutFlowEndToEnd(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	csrf := fetchCSRFToken(t, api)

	// A checkout with no open till must be refused before any money moves.
	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		IdempotencyKey:    "idem-http-1",
		PaymentMethod:     domain.PaymentMethodCash,
		CashReceivedCents: 20000,
		Lines: []domain.CartLine{
			{Kind: domain.LineKindAppointment, Description: "Haircut", UnitPriceCents: 10000, Qty: 1},
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without open session, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/cashups", token, csrf, domain.CashUpOpenRequest{
		OpeningFloatCents: 10000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open cash-up: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/settlement/compute", token, csrf, domain.SettlementRequest{
		Lines: []domain.CartLine{
			{Kind: domain.LineKindAppointment, Description: "Haircut", UnitPriceCents: 10000, Qty: 1},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("compute settlement: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var quote domain.Settlement
	if err := json.NewDecoder(rec.Body).Decode(&quote); err != nil {
		t.Fatalf("decode settlement: %v", err)
	}
	if quote.TotalCents != 11500 {
		t.Fatalf("expected total 11500 (10000 + 15%% tax), got %d", quote.TotalCents)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		IdempotencyKey:    "idem-http-1",
		PaymentMethod:     domain.PaymentMethodCash,
		CashReceivedCents: 12000,
		Lines: []domain.CartLine{
			{Kind: domain.LineKindAppointment, Description: "Haircut", UnitPriceCents: 10000, Qty: 1},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if resp.ChangeCents != 500 {
		t.Fatalf("expected change 500, got %d", resp.ChangeCents)
	}
	if resp.Duplicate {
		t.Fatalf("first checkout should not be flagged duplicate")
	}

	// Replay with the same idempotency key returns the stored result.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		IdempotencyKey:    "idem-http-1",
		PaymentMethod:     domain.PaymentMethodCash,
		CashReceivedCents: 12000,
		Lines: []domain.CartLine{
			{Kind: domain.LineKindAppointment, Description: "Haircut", UnitPriceCents: 10000, Qty: 1},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout replay: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var replay domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&replay); err != nil {
		t.Fatalf("decode replay response: %v", err)
	}
	if !replay.Duplicate {
		t.Fatalf("expected replay to be flagged duplicate")
	}
	if replay.TransactionID != resp.TransactionID {
		t.Fatalf("replay returned different transaction: %s vs %s", replay.TransactionID, resp.TransactionID)
	}

	// The transaction is visible through the lookup endpoints.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+resp.TransactionID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	getRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get transaction: expected 200, got %d (body: %s)", getRec.Code, getRec.Body.String())
	}
}

func TestCheckoutPaymentErrorsAreBadRequests(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/cashups", token, csrf, domain.CashUpOpenRequest{
		OpeningFloatCents: 10000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open cash-up: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	lines := []domain.CartLine{
		{Kind: domain.LineKindAppointment, Description: "Haircut", UnitPriceCents: 10000, Qty: 1},
	}

	// Cash short of the total is the terminal's mistake, not a conflict.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		IdempotencyKey:    "idem-short-cash",
		PaymentMethod:     domain.PaymentMethodCash,
		CashReceivedCents: 5000,
		Lines:             lines,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short cash: expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Splits that do not add up to the total are refused the same way.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		IdempotencyKey: "idem-bad-split",
		PaymentMethod:  domain.PaymentMethodSplit,
		PaymentSplits: []domain.PaymentSplit{
			{Method: domain.PaymentMethodCash, AmountCents: 5000},
			{Method: domain.PaymentMethodCard, AmountCents: 5000, Reference: "AUTH-77"},
		},
		Lines: lines,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched split: expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCashUpCompleteAndReconcileFlow(t *testing.T) {
	api := newTestAPI(t)
	adminToken := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/cashups", adminToken, csrf, domain.CashUpOpenRequest{
		OpeningFloatCents: 20000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open cash-up: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var opened struct {
		Session domain.CashUpSession `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&opened); err != nil {
		t.Fatalf("decode open response: %v", err)
	}
	sessionID := opened.Session.ID

	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/cashups/%s/expenses", sessionID), adminToken, csrf, domain.ExpenseRequest{
		Description: "courier",
		AmountCents: 2500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expense: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Reconcile before completion must be refused.
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/cashups/%s/reconcile", sessionID), bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("X-CSRF-Token", csrf)
	req.Header.Set("X-Manager-PIN", "123456")
	earlyRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(earlyRec, req)
	if earlyRec.Code != http.StatusConflict {
		t.Fatalf("reconcile before completion: expected 409, got %d (body: %s)", earlyRec.Code, earlyRec.Body.String())
	}

	actual := int64(17400)
	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/cashups/%s/complete", sessionID), adminToken, csrf, domain.CashUpCompleteRequest{
		ActualCashCents: &actual,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete cash-up: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var completed struct {
		Session domain.CashUpSession `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&completed); err != nil {
		t.Fatalf("decode complete response: %v", err)
	}
	if completed.Session.VarianceCents == nil || *completed.Session.VarianceCents != -100 {
		t.Fatalf("expected variance -100 (17400 actual vs 17500 expected), got %v", completed.Session.VarianceCents)
	}

	// Reconcile without the manager PIN header is forbidden.
	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/cashups/%s/reconcile", sessionID), adminToken, csrf, domain.CashUpReconcileRequest{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("reconcile without pin: expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/cashups/%s/reconcile", sessionID), bytes.NewReader([]byte(`{"notes":"accepted short"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("X-CSRF-Token", csrf)
	req.Header.Set("X-Manager-PIN", "123456")
	finalRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(finalRec, req)
	if finalRec.Code != http.StatusOK {
		t.Fatalf("reconcile: expected 200, got %d (body: %s)", finalRec.Code, finalRec.Body.String())
	}
	var reconciled struct {
		Session domain.CashUpSession `json:"session"`
	}
	if err := json.NewDecoder(finalRec.Body).Decode(&reconciled); err != nil {
		t.Fatalf("decode reconcile response: %v", err)
	}
	if reconciled.Session.Status != domain.SessionStatusReconciled {
		t.Fatalf("expected status reconciled, got %s", reconciled.Session.Status)
	}
}

func TestCreditEndpointsRoleSplit(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAsCashier(t, api)
	adminToken := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	// Cashiers may not grant store credit.
	rec := doJSON(t, api, http.MethodPost, "/api/v1/clients/client-carla/credit/add", cashierToken, csrf, domain.CreditAddRequest{
		AmountCents: 5000,
		SourceType:  domain.CreditSourcePrepayment,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier credit add: expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/clients/client-carla/credit/add", adminToken, csrf, domain.CreditAddRequest{
		AmountCents: 5000,
		SourceType:  domain.CreditSourcePrepayment,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin credit add: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Cashiers can redeem at the till.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/clients/client-carla/credit/redeem", cashierToken, csrf, domain.CreditRedeemRequest{
		AmountCents: 2000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("cashier credit redeem: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Over-redemption is a conflict, not a validation error.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/clients/client-carla/credit/redeem", cashierToken, csrf, domain.CreditRedeemRequest{
		AmountCents: 9000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("over-redeem: expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients/client-carla/credit", nil)
	req.Header.Set("Authorization", "Bearer "+cashierToken)
	getRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get balance: expected 200, got %d (body: %s)", getRec.Code, getRec.Body.String())
	}
	var balance domain.CreditBalanceResponse
	if err := json.NewDecoder(getRec.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.BalanceCents != 3000 {
		t.Fatalf("expected balance 3000 after add 5000 / redeem 2000, got %d", balance.BalanceCents)
	}
}

func TestCreditReportsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAsCashier(t, api)
	adminToken := loginAsAdmin(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/credit-outstanding", nil)
	req.Header.Set("Authorization", "Bearer "+cashierToken)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier outstanding report: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/credit-outstanding", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin outstanding report: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["clients"] == nil {
		t.Fatalf("expected clients key in response, got %v", body)
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
