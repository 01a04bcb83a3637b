// Package cardpay is the client for the card payment gateway. The gateway
// authorizes and captures funds for a connected seller account, carries
// opaque metadata through to its terminal events, and notifies via signed
// webhooks.
package cardpay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Payment statuses reported by the gateway.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrPaymentNotFound is returned when the gateway does not know the payment.
var ErrPaymentNotFound = errors.New("payment not found")

// Payment is the gateway's payment object. Metadata round-trips verbatim
// from CreatePayment through to webhook events and GetPayment responses.
type Payment struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string

	// FeeMinor is the gateway's own computed platform fee. Zero when the
	// gateway did not report one.
	FeeMinor int64

	Metadata    map[string]string
	ApprovalURL string
}

// CreatePaymentRequest authorizes a payment for a connected seller.
type CreatePaymentRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Destination string            `json:"destination"`
	FeeMinor    int64             `json:"application_fee"`
	Metadata    map[string]string `json:"metadata"`
}

// Config configures the gateway client.
type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

// Client talks to the gateway's REST API.
type Client struct {
	baseURL string
	apiKey  string
	secret  []byte
	httpc   *http.Client
}

// NewClient creates a gateway client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		secret:  []byte(cfg.WebhookSecret),
		httpc: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreatePayment authorizes a payment. The metadata map must carry everything
// settlement needs, because the terminal event is the only thing guaranteed
// to come back.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build payment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read payment response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("gateway returned status %d: %s", resp.StatusCode, raw)
	}

	p, err := parsePayment(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

// GetPayment retrieves a payment by id. Used by the poll trigger after the
// buyer is redirected back from the gateway.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+id, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build payment request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read payment response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gateway returned status %d: %s", resp.StatusCode, raw)
	}

	p, err := parsePayment(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}
