// Package handler exposes the storefront HTTP API. The webhook, payment
// status poll, and invoice confirmation endpoints are the three trigger
// adapters for settlement: each observes a terminal "paid" signal and calls
// into the settlement engine, never creating orders itself.
package handler

import (
	"context"
	"net/http"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/domain/catalog"
	"github.com/nordmarkt/storefront/internal/gateway/cardpay"
	"github.com/nordmarkt/storefront/internal/gateway/invoicer"
	"github.com/nordmarkt/storefront/internal/settlement"
)

// Settler materializes orders from terminal payment signals.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (int64, error)
}

// CartValidator recomputes cart value from trusted catalog data.
type CartValidator interface {
	ValidateCart(ctx context.Context, lines []checkout.CartLine) (*checkout.ValidatedCart, error)
}

// PaymentGateway is the card gateway surface the handlers need.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req cardpay.CreatePaymentRequest) (*cardpay.Payment, error)
	GetPayment(ctx context.Context, id string) (*cardpay.Payment, error)
	VerifySignature(body []byte, signature string) bool
}

// InvoiceProvider is the invoice-based payment provider surface.
type InvoiceProvider interface {
	GetInvoice(ctx context.Context, id string) (*invoicer.Invoice, error)
}

// BrandDirectory resolves the gateway destination account for a brand.
type BrandDirectory interface {
	GatewayAccountID(ctx context.Context, brandID string) (string, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler implements the storefront API endpoints.
type Handler struct {
	products  catalog.Repository
	validator CartValidator
	settler   Settler
	gateway   PaymentGateway
	invoices  InvoiceProvider
	brands    BrandDirectory

	imageBaseURL string
}

// New constructs a Handler with the required dependencies.
func New(
	cfg Config,
	products catalog.Repository,
	validator CartValidator,
	settler Settler,
	gateway PaymentGateway,
	invoices InvoiceProvider,
	brands BrandDirectory,
) *Handler {
	return &Handler{
		products:     products,
		validator:    validator,
		settler:      settler,
		gateway:      gateway,
		invoices:     invoices,
		brands:       brands,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("POST /api/webhooks/cardpay", h.CardpayWebhook)
	mux.HandleFunc("GET /api/payments/{id}/status", h.PaymentStatus)
	mux.HandleFunc("POST /api/invoices/{id}/confirm", h.ConfirmInvoice)
}
