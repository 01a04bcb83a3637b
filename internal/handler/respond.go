package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/settlement"
)

// errorResponse is the uniform error body for all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("Response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: message})
}

// writeCartError maps validation errors to client statuses; anything else is
// an internal failure.
func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pnfErr *checkout.ProductNotFoundError
		puErr  *checkout.ProductUnavailableError
		usErr  *checkout.UnknownSizeError
		iqErr  *checkout.InvalidQuantityError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrMixedSellers):
		writeError(w, r, http.StatusUnprocessableEntity, "cart must contain items from a single seller")
	case errors.As(err, &pnfErr), errors.As(err, &puErr), errors.As(err, &usErr), errors.As(err, &iqErr):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

// writeSettleError distinguishes the retryable in-progress race from real
// failures.
func writeSettleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, settlement.ErrInProgress) {
		writeError(w, r, http.StatusConflict, "settlement in progress, retry shortly")
		return
	}
	writeInternalError(w, r, err)
}
