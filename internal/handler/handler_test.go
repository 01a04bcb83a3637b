package handler

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

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/domain/catalog"
	"github.com/nordmarkt/storefront/internal/gateway/cardpay"
	"github.com/nordmarkt/storefront/internal/gateway/invoicer"
	"github.com/nordmarkt/storefront/internal/settlement"
)

const testSecret = "whsec_test"

// --- Mock implementations ---

type mockSettler struct {
	requests []settlement.Request
	number   int64
	err      error
}

func (m *mockSettler) Settle(_ context.Context, req settlement.Request) (int64, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return 0, m.err
	}
	return m.number, nil
}

type mockValidator struct {
	cart *checkout.ValidatedCart
	err  error
}

func (m *mockValidator) ValidateCart(_ context.Context, _ []checkout.CartLine) (*checkout.ValidatedCart, error) {
	return m.cart, m.err
}

type mockGateway struct {
	created   []cardpay.CreatePaymentRequest
	payment   *cardpay.Payment
	getErr    error
	createErr error
}

func (m *mockGateway) CreatePayment(_ context.Context, req cardpay.CreatePaymentRequest) (*cardpay.Payment, error) {
	m.created = append(m.created, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.payment, nil
}

func (m *mockGateway) GetPayment(_ context.Context, _ string) (*cardpay.Payment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.payment, nil
}

func (m *mockGateway) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), got)
}

type mockInvoices struct {
	invoice *invoicer.Invoice
	err     error
}

func (m *mockInvoices) GetInvoice(_ context.Context, _ string) (*invoicer.Invoice, error) {
	return m.invoice, m.err
}

type mockBrands struct {
	accountID string
}

func (m *mockBrands) GatewayAccountID(_ context.Context, _ string) (string, error) {
	return m.accountID, nil
}

type mockProducts struct {
	products []catalog.Product
}

func (m *mockProducts) List(_ context.Context) ([]catalog.Product, error) {
	return m.products, nil
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (m *mockProducts) GetByIDs(_ context.Context, _ []string) ([]catalog.Product, error) {
	return m.products, nil
}

// --- Helpers ---

type fixture struct {
	settler   *mockSettler
	validator *mockValidator
	gateway   *mockGateway
	invoices  *mockInvoices
	mux       *http.ServeMux
}

func newFixture() *fixture {
	f := &fixture{
		settler: &mockSettler{number: 100042},
		validator: &mockValidator{cart: &checkout.ValidatedCart{
			BrandID:    "b1",
			TotalMinor: 10000,
			Lines: []checkout.ValidatedLine{{
				ProductID:      "px",
				ProductName:    "Linen Shirt",
				BrandName:      "Atelier Nord",
				Size:           "M",
				Quantity:       2,
				UnitPrice:      decimal.RequireFromString("50.00"),
				Currency:       "EUR",
				UnitPriceMinor: 5000,
			}},
		}},
		gateway:  &mockGateway{},
		invoices: &mockInvoices{},
	}
	h := New(Config{}, &mockProducts{}, f.validator, f.settler, f.gateway, f.invoices, &mockBrands{accountID: "acct_b1"})
	f.mux = http.NewServeMux()
	h.Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func signBody(body []byte) map[string]string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return map[string]string{cardpay.SignatureHeader: hex.EncodeToString(mac.Sum(nil))}
}

func succeededEvent(paymentID string) []byte {
	cart := `[{"product_id":"px","product_name":"Linen Shirt","brand_name":"Atelier Nord","size":"M","quantity":2,"unit_price":"50.00","currency":"EUR"}]`
	shipping := `{"name":"Jo Doe","line1":"Main St 1","city":"Berlin","postal_code":"10115","country":"DE"}`
	event := map[string]any{
		"id":      "evt_1",
		"type":    "payment.succeeded",
		"created": 1749980000,
		"data": map[string]any{
			"payment": map[string]any{
				"id":       paymentID,
				"status":   "succeeded",
				"amount":   10000,
				"currency": "EUR",
				"metadata": map[string]string{
					"buyer_id": "u1",
					"brand_id": "b1",
					"email":    "buyer@example.com",
					"cart":     cart,
					"shipping": shipping,
				},
			},
		},
	}
	body, _ := json.Marshal(event)
	return body
}

// --- Webhook trigger ---

func TestCardpayWebhook_SettlesPaymentSucceeded(t *testing.T) {
	f := newFixture()
	body := succeededEvent("pay_7")

	rec := f.do(t, http.MethodPost, "/api/webhooks/cardpay", body, signBody(body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.settler.requests, 1)

	req := f.settler.requests[0]
	assert.Equal(t, "cardpay:pay_7", req.PaymentRef)
	assert.Equal(t, "card", req.PaymentMethod)
	assert.Equal(t, "u1", req.BuyerID)
	assert.Equal(t, "b1", req.BrandID)
	assert.Equal(t, int64(10000), req.GrossMinor)
	assert.Equal(t, "Berlin", req.Shipping.City)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, 2, req.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("50.00").Equal(req.Lines[0].UnitPrice))
}

func TestCardpayWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture()
	body := succeededEvent("pay_7")

	rec := f.do(t, http.MethodPost, "/api/webhooks/cardpay", body,
		map[string]string{cardpay.SignatureHeader: "deadbeef"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.settler.requests)
}

func TestCardpayWebhook_MalformedEvent(t *testing.T) {
	f := newFixture()
	body := []byte(`{"nope": true}`)

	rec := f.do(t, http.MethodPost, "/api/webhooks/cardpay", body, signBody(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCardpayWebhook_AcksNonSettlementEvents(t *testing.T) {
	f := newFixture()
	for _, typ := range []string{"payment.failed", "account.updated", "payout.paid"} {
		body, _ := json.Marshal(map[string]any{"id": "evt_x", "type": typ, "created": 1})
		rec := f.do(t, http.MethodPost, "/api/webhooks/cardpay", body, signBody(body))
		assert.Equal(t, http.StatusOK, rec.Code, typ)
	}
	assert.Empty(t, f.settler.requests)
}

func TestCardpayWebhook_SettlementErrorTriggersRedelivery(t *testing.T) {
	f := newFixture()
	f.settler.err = errors.New("db down")
	body := succeededEvent("pay_7")

	rec := f.do(t, http.MethodPost, "/api/webhooks/cardpay", body, signBody(body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- Poll trigger ---

func TestPaymentStatus_SettlesOnSuccess(t *testing.T) {
	f := newFixture()
	f.gateway.payment = &cardpay.Payment{
		ID:          "pay_7",
		Status:      cardpay.StatusSucceeded,
		AmountMinor: 10000,
		Currency:    "EUR",
		Metadata: map[string]string{
			"buyer_id": "u1",
			"brand_id": "b1",
			"cart":     `[{"product_id":"px","product_name":"Linen Shirt","brand_name":"Atelier Nord","size":"M","quantity":2,"unit_price":"50.00","currency":"EUR"}]`,
		},
	}

	rec := f.do(t, http.MethodGet, "/api/payments/pay_7/status", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.settler.requests, 1)
	assert.Equal(t, "cardpay:pay_7", f.settler.requests[0].PaymentRef)

	var resp paymentStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(100042), resp.OrderNumber)
}

func TestPaymentStatus_PendingDoesNotSettle(t *testing.T) {
	f := newFixture()
	f.gateway.payment = &cardpay.Payment{ID: "pay_7", Status: cardpay.StatusPending}

	rec := f.do(t, http.MethodGet, "/api/payments/pay_7/status", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.settler.requests)

	var resp paymentStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, cardpay.StatusPending, resp.Status)
	assert.Zero(t, resp.OrderNumber)
}

func TestPaymentStatus_RepeatedPollsSameOrder(t *testing.T) {
	f := newFixture()
	f.gateway.payment = &cardpay.Payment{
		ID: "pay_7", Status: cardpay.StatusSucceeded, AmountMinor: 10000, Currency: "EUR",
		Metadata: map[string]string{
			"buyer_id": "u1", "brand_id": "b1",
			"cart": `[{"product_id":"px","product_name":"Linen Shirt","brand_name":"Atelier Nord","size":"M","quantity":2,"unit_price":"50.00","currency":"EUR"}]`,
		},
	}

	var numbers []int64
	for range 3 {
		rec := f.do(t, http.MethodGet, "/api/payments/pay_7/status", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp paymentStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		numbers = append(numbers, resp.OrderNumber)
	}

	assert.Equal(t, []int64{100042, 100042, 100042}, numbers)
}

func TestPaymentStatus_NotFound(t *testing.T) {
	f := newFixture()
	f.gateway.getErr = cardpay.ErrPaymentNotFound

	rec := f.do(t, http.MethodGet, "/api/payments/nope/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentStatus_GatewayUnavailable(t *testing.T) {
	f := newFixture()
	f.gateway.getErr = errors.New("connection refused")

	rec := f.do(t, http.MethodGet, "/api/payments/pay_7/status", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// --- Manual confirmation trigger ---

func confirmBody() []byte {
	body, _ := json.Marshal(confirmInvoiceRequest{
		BuyerID: "u1",
		Email:   "buyer@example.com",
		Items:   []checkoutItem{{ProductID: "px", Size: "M", Quantity: 2}},
	})
	return body
}

func TestConfirmInvoice_SettlesCompletedInvoice(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &invoicer.Invoice{
		ID: "inv_5", Status: invoicer.StatusCompleted, AmountMinor: 10000, Currency: "EUR",
	}

	rec := f.do(t, http.MethodPost, "/api/invoices/inv_5/confirm", confirmBody(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.settler.requests, 1)
	req := f.settler.requests[0]
	assert.Equal(t, "invoicer:inv_5", req.PaymentRef)
	assert.Equal(t, "invoice", req.PaymentMethod)
	assert.Equal(t, "b1", req.BrandID)
}

func TestConfirmInvoice_PendingInvoiceDoesNotSettle(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &invoicer.Invoice{ID: "inv_5", Status: invoicer.StatusPending}

	rec := f.do(t, http.MethodPost, "/api/invoices/inv_5/confirm", confirmBody(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.settler.requests)
}

func TestConfirmInvoice_MixedSellersRejected(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &invoicer.Invoice{ID: "inv_5", Status: invoicer.StatusCompleted, AmountMinor: 10000, Currency: "EUR"}
	f.validator.cart = nil
	f.validator.err = checkout.ErrMixedSellers

	rec := f.do(t, http.MethodPost, "/api/invoices/inv_5/confirm", confirmBody(), nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, f.settler.requests)
}

// --- Checkout ---

func TestCheckout_AuthorizesTrustedTotal(t *testing.T) {
	f := newFixture()
	f.gateway.payment = &cardpay.Payment{ID: "pay_new", ApprovalURL: "https://gw.example/approve/pay_new"}

	body, _ := json.Marshal(checkoutRequest{
		BuyerID: "u1",
		Email:   "buyer@example.com",
		Items:   []checkoutItem{{ProductID: "px", Size: "M", Quantity: 2}},
	})
	rec := f.do(t, http.MethodPost, "/api/checkout", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.gateway.created, 1)

	created := f.gateway.created[0]
	assert.Equal(t, int64(10000), created.AmountMinor)
	assert.Equal(t, "EUR", created.Currency)
	assert.Equal(t, "acct_b1", created.Destination)
	assert.Equal(t, "u1", created.Metadata["buyer_id"])
	assert.Equal(t, "b1", created.Metadata["brand_id"])
	assert.Contains(t, created.Metadata["cart"], `"unit_price":"50"`)

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pay_new", resp.PaymentID)
	assert.Equal(t, int64(10000), resp.TotalMinor)
}

func TestCheckout_MixedSellersNeverReachGateway(t *testing.T) {
	f := newFixture()
	f.validator.cart = nil
	f.validator.err = checkout.ErrMixedSellers

	body, _ := json.Marshal(checkoutRequest{
		BuyerID: "u1",
		Items:   []checkoutItem{{ProductID: "px", Size: "M", Quantity: 1}},
	})
	rec := f.do(t, http.MethodPost, "/api/checkout", body, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, f.gateway.created, "no payment authorization for an invalid cart")
}

func TestCheckout_UnknownProduct(t *testing.T) {
	f := newFixture()
	f.validator.cart = nil
	f.validator.err = &checkout.ProductNotFoundError{ProductID: "ghost"}

	body, _ := json.Marshal(checkoutRequest{
		BuyerID: "u1",
		Items:   []checkoutItem{{ProductID: "ghost", Size: "M", Quantity: 1}},
	})
	rec := f.do(t, http.MethodPost, "/api/checkout", body, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "ghost")
}

// --- Catalog ---

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/products/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProducts_FiltersUnapproved(t *testing.T) {
	products := &mockProducts{products: []catalog.Product{
		{ID: "p1", Status: catalog.StatusApproved, Price: decimal.RequireFromString("10.00")},
		{ID: "p2", Status: catalog.StatusPending, Price: decimal.RequireFromString("12.00")},
	}}
	h := New(Config{}, products, &mockValidator{}, &mockSettler{}, &mockGateway{}, &mockInvoices{}, &mockBrands{})
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)
}
