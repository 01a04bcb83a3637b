package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/currency"
	"github.com/nordmarkt/storefront/internal/domain/order"
	"github.com/nordmarkt/storefront/internal/gateway/cardpay"
)

type checkoutRequest struct {
	BuyerID  string         `json:"buyer_id"`
	Email    string         `json:"email"`
	Items    []checkoutItem `json:"items"`
	Shipping order.Address  `json:"shipping"`
}

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type checkoutResponse struct {
	PaymentID   string `json:"payment_id"`
	ApprovalURL string `json:"approval_url,omitempty"`
	TotalMinor  int64  `json:"total_minor"`
	Currency    string `json:"currency"`
}

// Checkout validates the cart against the catalog and authorizes a gateway
// payment for the server-computed total. The validated cart, shipping
// snapshot, and buyer identity ride along as payment metadata so the terminal
// event carries everything settlement needs.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BuyerID == "" {
		writeError(w, r, http.StatusBadRequest, "buyer_id required")
		return
	}

	lines := make([]checkout.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = checkout.CartLine{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity}
	}

	cart, err := h.validator.ValidateCart(r.Context(), lines)
	if err != nil {
		writeCartError(w, r, err)
		return
	}

	destination, err := h.brands.GatewayAccountID(r.Context(), cart.BrandID)
	if err != nil {
		writeInternalError(w, r, errors.Wrap(err, "resolve gateway account"))
		return
	}

	md, err := buildMetadata(req.BuyerID, req.Email, cart, req.Shipping)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	payment, err := h.gateway.CreatePayment(r.Context(), cardpay.CreatePaymentRequest{
		AmountMinor: cart.TotalMinor,
		Currency:    currency.Settlement,
		Destination: destination,
		Metadata:    md,
	})
	if err != nil {
		writeInternalError(w, r, errors.Wrap(err, "create payment"))
		return
	}

	writeJSON(w, r, http.StatusOK, checkoutResponse{
		PaymentID:   payment.ID,
		ApprovalURL: payment.ApprovalURL,
		TotalMinor:  cart.TotalMinor,
		Currency:    currency.Settlement,
	})
}
