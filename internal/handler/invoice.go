package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/domain/order"
	"github.com/nordmarkt/storefront/internal/gateway/invoicer"
	"github.com/nordmarkt/storefront/internal/settlement"
)

type confirmInvoiceRequest struct {
	BuyerID  string         `json:"buyer_id"`
	Email    string         `json:"email"`
	Items    []checkoutItem `json:"items"`
	Shipping order.Address  `json:"shipping"`
}

type confirmInvoiceResponse struct {
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	OrderNumber int64  `json:"order_number,omitempty"`
}

// ConfirmInvoice is the manual trigger adapter for the invoice-based payment
// provider. The cart arrives client-side on this path, so it goes through
// full validation before settlement; the invoice must already be completed at
// the provider.
func (h *Handler) ConfirmInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID := r.PathValue("id")

	var req confirmInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BuyerID == "" {
		writeError(w, r, http.StatusBadRequest, "buyer_id required")
		return
	}

	inv, err := h.invoices.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, invoicer.ErrInvoiceNotFound) {
			writeError(w, r, http.StatusNotFound, "invoice not found")
			return
		}
		writeError(w, r, http.StatusBadGateway, "invoice provider unavailable")
		return
	}
	if inv.Status != invoicer.StatusCompleted {
		writeJSON(w, r, http.StatusOK, confirmInvoiceResponse{
			InvoiceID: inv.ID,
			Status:    string(inv.Status),
		})
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

	settleLines := make([]settlement.Line, len(cart.Lines))
	for i, l := range cart.Lines {
		settleLines[i] = settlement.Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			BrandName:   l.BrandName,
			Size:        l.Size,
			Quantity:    l.Quantity,
			Image:       l.Image,
			UnitPrice:   l.UnitPrice,
			Currency:    l.Currency,
		}
	}

	number, err := h.settler.Settle(r.Context(), settlement.Request{
		PaymentRef:    "invoicer:" + inv.ID,
		PaymentMethod: "invoice",
		BuyerID:       req.BuyerID,
		BrandID:       cart.BrandID,
		BuyerEmail:    req.Email,
		Lines:         settleLines,
		Shipping:      req.Shipping,
		GrossMinor:    inv.AmountMinor,
		Currency:      inv.Currency,
	})
	if err != nil {
		writeSettleError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, confirmInvoiceResponse{
		InvoiceID:   inv.ID,
		Status:      string(inv.Status),
		OrderNumber: number,
	})
}
