package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/nordmarkt/storefront/internal/gateway/cardpay"
)

// maxWebhookBody bounds webhook payload size.
const maxWebhookBody = 1 << 20

// CardpayWebhook is the push trigger adapter. It verifies the gateway
// signature over the raw body, and on a payment.succeeded event settles from
// the metadata attached at authorization time. Settlement failures return 500
// so the gateway redelivers; duplicates resolve to 200 with the original
// order number.
func (h *Handler) CardpayWebhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unreadable body")
		return
	}

	if !h.gateway.VerifySignature(body, r.Header.Get(cardpay.SignatureHeader)) {
		lg.Warn("Webhook signature rejected")
		writeError(w, r, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := cardpay.ParseEvent(body)
	if err != nil {
		lg.Warn("Webhook event malformed", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "malformed event")
		return
	}

	switch ev.Type {
	case cardpay.EventPaymentSucceeded:
		req, err := settleRequestFromMetadata(
			"cardpay:"+ev.Payment.ID, "card",
			ev.Payment.Metadata, ev.Payment.AmountMinor, ev.Payment.Currency, ev.Payment.FeeMinor,
		)
		if err != nil {
			lg.Error("Webhook metadata unusable", zap.String("event_id", ev.ID), zap.Error(err))
			writeError(w, r, http.StatusBadRequest, "unusable metadata")
			return
		}

		number, err := h.settler.Settle(r.Context(), req)
		if err != nil {
			writeSettleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"received": true, "order_number": number})

	case cardpay.EventPaymentFailed:
		lg.Info("Payment failed", zap.String("event_id", ev.ID), zap.String("payment_id", ev.Payment.ID))
		writeJSON(w, r, http.StatusOK, map[string]any{"received": true})

	default:
		// Account and payout events are somebody else's workflow; just ack.
		lg.Debug("Webhook event ignored", zap.String("type", ev.Type))
		writeJSON(w, r, http.StatusOK, map[string]any{"received": true})
	}
}
