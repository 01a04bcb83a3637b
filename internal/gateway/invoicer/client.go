// Package invoicer is the client for the invoice-based payment provider.
// Unlike the card gateway it has no webhook feed; the manual confirmation
// trigger polls invoice status directly.
package invoicer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// ErrInvoiceNotFound is returned when the provider does not know the invoice.
var ErrInvoiceNotFound = errors.New("invoice not found")

// Invoice is the provider's invoice object.
type Invoice struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Config configures the invoicer client.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client talks to the invoice provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient creates an invoicer client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpc: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GetInvoice retrieves an invoice by its externally issued id.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/invoices/"+id, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build invoice request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "get invoice")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrInvoiceNotFound
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read invoice response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("invoicer returned status %d: %s", resp.StatusCode, raw)
	}

	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, errors.Wrap(err, "decode invoice")
	}
	if inv.ID == "" {
		return nil, errors.New("invoice missing id")
	}
	return &inv, nil
}
