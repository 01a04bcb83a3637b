package currency

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FeedSource fetches the rate table from a keyless exchange-rate feed. The
// feed responds with a base currency and per-target rates; the client asks
// for the settlement currency as base and inverts each rate so the table
// holds to-settlement multipliers.
type FeedSource struct {
	baseURL string
	httpc   *http.Client
}

// NewFeedSource creates a FeedSource for the given feed base URL.
func NewFeedSource(baseURL string) *FeedSource {
	return &FeedSource{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type feedResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rates implements Source.
func (s *FeedSource) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	u, err := url.JoinPath(s.baseURL, "latest")
	if err != nil {
		return nil, errors.Wrap(err, "build feed url")
	}
	u += "?base=" + Settlement

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build feed request")
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch rates")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("rate feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read feed response")
	}

	var fr feedResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, errors.Wrap(err, "decode feed response")
	}
	if fr.Base != Settlement {
		return nil, errors.Errorf("rate feed returned base %q, want %q", fr.Base, Settlement)
	}
	if len(fr.Rates) == 0 {
		return nil, errors.New("rate feed returned no rates")
	}

	one := decimal.NewFromInt(1)
	rates := make(map[string]decimal.Decimal, len(fr.Rates))
	for code, perSettlement := range fr.Rates {
		if !perSettlement.IsPositive() {
			continue
		}
		// Feed rate is units of code per 1 settlement unit; invert to get the
		// to-settlement multiplier. 16 digits is far beyond minor-unit needs.
		rates[code] = one.DivRound(perSettlement, 16)
	}
	return rates, nil
}
