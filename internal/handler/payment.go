package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/nordmarkt/storefront/internal/gateway/cardpay"
)

type paymentStatusResponse struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	OrderNumber int64  `json:"order_number,omitempty"`
}

// PaymentStatus is the pull trigger adapter, called by the buyer's client
// after redirect-back from the gateway. It asks the gateway for the payment's
// current status and, if the payment succeeded, attempts settlement. This is
// the fallback path for environments webhooks cannot reach, and the client
// retries it freely: duplicate calls resolve to the same order number.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	payment, err := h.gateway.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, cardpay.ErrPaymentNotFound) {
			writeError(w, r, http.StatusNotFound, "payment not found")
			return
		}
		writeError(w, r, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	if payment.Status != cardpay.StatusSucceeded {
		writeJSON(w, r, http.StatusOK, paymentStatusResponse{
			PaymentID: payment.ID,
			Status:    payment.Status,
		})
		return
	}

	req, err := settleRequestFromMetadata(
		"cardpay:"+payment.ID, "card",
		payment.Metadata, payment.AmountMinor, payment.Currency, payment.FeeMinor,
	)
	if err != nil {
		writeInternalError(w, r, errors.Wrap(err, "payment metadata"))
		return
	}

	number, err := h.settler.Settle(r.Context(), req)
	if err != nil {
		writeSettleError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, paymentStatusResponse{
		PaymentID:   payment.ID,
		Status:      payment.Status,
		OrderNumber: number,
	})
}
