package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/auth"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

const signingSecret = "gateway-secret"

type apiFixture struct {
	server  *httptest.Server
	tokens  *auth.TokenService
	gateway *payment.MockGateway
	store   *memory.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	outbox := memory.NewOutboxRepository()
	store := memory.NewStore(outbox)
	store.PutProduct(1, "Keyboard", decimal.RequireFromString("250.00"))
	store.PutProduct(2, "Mouse", decimal.RequireFromString("99.50"))
	store.SetCartItem("user-1", 1, 2)
	store.SetCartItem("user-1", 2, 1)

	gateway := payment.NewMockGateway(checkout.NewVerifier(signingSecret))
	logger, _ := test.NewNullLogger()

	cfg := checkout.DefaultConfig()
	cfg.SigningSecret = signingSecret
	orch, err := checkout.NewOrchestrator(checkout.Deps{
		Store:       store,
		Orders:      store,
		Gateway:     gateway,
		Ledger:      memory.NewIntentLedger(),
		Idempotency: memory.NewIdempotencyRepository(),
		Outbox:      outbox,
		Metrics:     metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:      logger.WithField("component", "checkout"),
	}, cfg)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("jwt-secret", time.Hour, "checkout")
	require.NoError(t, err)

	h := NewHandler(orch, tokens, Options{RequestTimeout: 5 * time.Second, Logger: logger.WithField("component", "http-api")})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, tokens: tokens, gateway: gateway, store: store}
}

func (f *apiFixture) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	token, err := f.tokens.Issue(userID, role)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeError(t *testing.T, body []byte) errorDetail {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

func TestCheckoutFlow(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "user-1", auth.RoleCustomer)

	resp, body := fx.do(t, http.MethodGet, "/checkout", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary summaryResponse
	require.NoError(t, json.Unmarshal(body, &summary))
	require.Equal(t, "599.50", summary.Total)
	require.Equal(t, int64(59950), summary.AmountMinor)
	require.Len(t, summary.Items, 2)
	require.Equal(t, 3, summary.ItemCount)

	resp, body = fx.do(t, http.MethodPost, "/checkout/initiate", token, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var initiated checkout.InitiateResult
	require.NoError(t, json.Unmarshal(body, &initiated))
	require.NotEmpty(t, initiated.IntentID)
	require.Equal(t, int64(59950), initiated.AmountMinor)
	require.Equal(t, "INR", initiated.Currency)

	cb, err := fx.gateway.Pay(initiated.IntentID)
	require.NoError(t, err)
	verifyBody := verifyRequest{IntentID: cb.IntentID, PaymentID: cb.PaymentID, Signature: cb.Signature}

	resp, body = fx.do(t, http.MethodPost, "/checkout/verify", token, verifyBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var verified verifyResponse
	require.NoError(t, json.Unmarshal(body, &verified))
	require.Equal(t, "599.50", verified.TotalAmount)
	require.Equal(t, "paid", verified.Status)
	require.False(t, verified.Replayed)

	resp, body = fx.do(t, http.MethodPost, "/checkout/verify", token, verifyBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var replay verifyResponse
	require.NoError(t, json.Unmarshal(body, &replay))
	require.True(t, replay.Replayed)
	require.Equal(t, verified.OrderID, replay.OrderID)

	resp, body = fx.do(t, http.MethodGet, "/orders/history", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history ordersResponse
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Orders, 1)
	require.Equal(t, verified.OrderID, history.Orders[0].OrderID)
	require.Len(t, history.Orders[0].Items, 2)

	// Оплаченная корзина очищена: сводка пустая, но не ошибка.
	resp, body = fx.do(t, http.MethodGet, "/checkout", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty summaryResponse
	require.NoError(t, json.Unmarshal(body, &empty))
	require.Empty(t, empty.Items)
	require.NotNil(t, empty.Items)
	require.Equal(t, "0.00", empty.Total)
	require.Zero(t, empty.AmountMinor)
	require.Zero(t, empty.ItemCount)
	require.Equal(t, "INR", empty.Currency)

	resp, body = fx.do(t, http.MethodPost, "/checkout/initiate", token, nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, string(domain.KindEmptyCart), decodeError(t, body).Code)
}

func TestInitiate_IdempotencyKey(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "user-1", auth.RoleCustomer)
	headers := map[string]string{IdempotencyKeyHeader: "key-1"}

	resp, first := fx.do(t, http.MethodPost, "/checkout/initiate", token, nil, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Empty(t, resp.Header.Get(IdempotencyReplayedHeader))

	resp, second := fx.do(t, http.MethodPost, "/checkout/initiate", token, nil, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get(IdempotencyReplayedHeader))
	require.JSONEq(t, string(first), string(second))
	require.Equal(t, 1, fx.gateway.Calls())
}

func TestVerify_Rejections(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "user-1", auth.RoleCustomer)

	resp, body := fx.do(t, http.MethodPost, "/checkout/initiate", token, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var initiated checkout.InitiateResult
	require.NoError(t, json.Unmarshal(body, &initiated))
	cb, err := fx.gateway.Pay(initiated.IntentID)
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "not json", token: token, body: "{", wantStatus: http.StatusBadRequest, wantCode: string(domain.KindMalformedCallback)},
		{name: "missing signature", token: token, body: verifyRequest{IntentID: cb.IntentID, PaymentID: cb.PaymentID}, wantStatus: http.StatusBadRequest, wantCode: string(domain.KindMalformedCallback)},
		{name: "forged signature", token: token, body: verifyRequest{IntentID: cb.IntentID, PaymentID: cb.PaymentID, Signature: "deadbeef"}, wantStatus: http.StatusForbidden, wantCode: string(domain.KindSignatureMismatch)},
		{name: "other user", token: fx.token(t, "user-2", auth.RoleCustomer), body: verifyRequest{IntentID: cb.IntentID, PaymentID: cb.PaymentID, Signature: cb.Signature}, wantStatus: http.StatusForbidden, wantCode: string(domain.KindIntentOwnerMismatch)},
		{name: "no token", body: verifyRequest{IntentID: cb.IntentID, PaymentID: cb.PaymentID, Signature: cb.Signature}, wantStatus: http.StatusUnauthorized, wantCode: codeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := fx.do(t, http.MethodPost, "/checkout/verify", tt.token, tt.body, nil)
			require.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
			require.Equal(t, tt.wantCode, decodeError(t, body).Code)
		})
	}

	snapshot, err := fx.store.ReadCart(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, snapshot.Empty(), "rejected callbacks must not touch the cart")
}

func TestInitiate_GatewayUnavailable(t *testing.T) {
	fx := newAPIFixture(t)
	fx.gateway.CreateErr = errors.New("connection refused")

	resp, body := fx.do(t, http.MethodPost, "/checkout/initiate", fx.token(t, "user-1", auth.RoleCustomer), nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, string(domain.KindGatewayUnavailable), decodeError(t, body).Code)
}

func TestAdminOrders_RoleCheck(t *testing.T) {
	fx := newAPIFixture(t)

	resp, body := fx.do(t, http.MethodGet, "/admin/orders", fx.token(t, "user-1", auth.RoleCustomer), nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	forbidden := decodeError(t, body)
	require.Equal(t, codeForbidden, forbidden.Code)
	require.Equal(t, auth.ErrForbidden.Error(), forbidden.Message)

	admin := fx.token(t, "admin-1", auth.RoleAdmin)
	resp, body = fx.do(t, http.MethodGet, "/admin/orders?limit=10", admin, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders ordersResponse
	require.NoError(t, json.Unmarshal(body, &orders))
	require.NotNil(t, orders.Orders)

	resp, _ = fx.do(t, http.MethodGet, "/admin/orders?limit=abc", admin, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// stubService возвращает заранее заданную ошибку из каждой операции.
type stubService struct {
	err error
}

func (s stubService) Initiate(context.Context, string) (checkout.InitiateResult, error) {
	return checkout.InitiateResult{}, s.err
}

func (s stubService) InitiateIdempotent(context.Context, string, string) (checkout.InitiateResult, bool, error) {
	return checkout.InitiateResult{}, false, s.err
}

func (s stubService) Verify(context.Context, string, domain.PaymentCallback) (checkout.VerifyResult, error) {
	return checkout.VerifyResult{}, s.err
}

func (s stubService) Summary(context.Context, string) (checkout.Summary, error) {
	return checkout.Summary{}, s.err
}

func (s stubService) History(context.Context, string) ([]domain.Order, error) {
	return nil, s.err
}

func (s stubService) AllOrders(context.Context, int) ([]domain.Order, error) {
	return nil, s.err
}

func TestErrorMapping(t *testing.T) {
	tokens, err := auth.NewTokenService("jwt-secret", time.Hour, "")
	require.NoError(t, err)
	token, err := tokens.Issue("user-1", auth.RoleCustomer)
	require.NoError(t, err)

	tests := []struct {
		err         error
		wantStatus  int
		wantCode    domain.ErrorKind
		wantMessage string
	}{
		{err: fmt.Errorf("%w: %w", domain.ErrPaymentRecordedOrderMissing, domain.ErrFinalizationFailed), wantStatus: http.StatusInternalServerError, wantCode: domain.KindPaymentRecordedOrderMissing, wantMessage: PaymentRecordedOrderMissingMessage},
		{err: domain.ErrFinalizationFailed, wantStatus: http.StatusInternalServerError, wantCode: domain.KindFinalizationFailed},
		{err: domain.ErrIdempotencyKeyAlreadyExists, wantStatus: http.StatusConflict, wantCode: domain.KindIdempotencyConflict},
		{err: domain.ErrIdempotencyHashMismatch, wantStatus: http.StatusConflict, wantCode: domain.KindIdempotencyConflict},
		{err: domain.ErrEmptyCart, wantStatus: http.StatusUnprocessableEntity, wantCode: domain.KindEmptyCart},
		{err: errors.New("db exploded: password=secret"), wantStatus: http.StatusInternalServerError, wantCode: domain.KindInternal, wantMessage: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantCode), func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			h := NewHandler(stubService{err: tt.err}, tokens, Options{Logger: logger.WithField("component", "test")})

			req := httptest.NewRequest(http.MethodPost, "/checkout/initiate", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			detail := decodeError(t, rec.Body.Bytes())
			require.Equal(t, string(tt.wantCode), detail.Code)
			if tt.wantMessage != "" {
				require.Equal(t, tt.wantMessage, detail.Message)
			}
		})
	}
}
