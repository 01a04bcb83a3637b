// Package currency normalizes money into the platform's single settlement
// currency. It is the only place exchange rates are read for amounts that
// will be persisted; display conversion for the UI is a separate, best-effort
// client concern.
package currency

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Settlement is the fixed settlement currency. Every persisted monetary value
// is minor units of this currency.
const Settlement = "EUR"

// DefaultRefreshInterval is how long a fetched rate table is served before a
// refresh is attempted.
const DefaultRefreshInterval = time.Hour

// UnknownCurrencyError indicates no rate is known for a currency code.
type UnknownCurrencyError struct {
	Code string
}

func (e *UnknownCurrencyError) Error() string {
	return "no exchange rate for currency " + e.Code
}

// Source provides the current rate table. Rates are expressed as the value of
// one unit of the keyed currency in the settlement currency, so converting
// multiplies. The settlement currency itself needs no entry.
type Source interface {
	Rates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// fallbackRates are served when no fetch has ever succeeded. Deliberately
// coarse; a running service replaces them within one refresh interval.
var fallbackRates = map[string]decimal.Decimal{
	"USD": decimal.RequireFromString("0.92"),
	"GBP": decimal.RequireFromString("1.17"),
	"CHF": decimal.RequireFromString("1.05"),
	"SEK": decimal.RequireFromString("0.088"),
	"DKK": decimal.RequireFromString("0.134"),
	"PLN": decimal.RequireFromString("0.23"),
	"JPY": decimal.RequireFromString("0.0062"),
}

// StaticSource serves the built-in fallback table on every fetch. Used when
// no rate feed is configured, such as in local development.
type StaticSource struct{}

// Rates implements Source.
func (StaticSource) Rates(_ context.Context) (map[string]decimal.Decimal, error) {
	return fallbackRates, nil
}

var minorFactor = decimal.NewFromInt(100)

// Converter converts amounts into settlement-currency minor units using a
// cached rate table. Safe for concurrent use; concurrent refreshes collapse
// into a single upstream call.
type Converter struct {
	source  Source
	refresh time.Duration
	now     func() time.Time
	lg      *zap.Logger

	group singleflight.Group

	mu        sync.RWMutex
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

// Option customizes a Converter.
type Option func(*Converter)

// WithRefreshInterval overrides the rate table refresh interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Converter) { c.refresh = d }
}

// WithClock injects the time source, so tests can drive cache expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) { c.now = now }
}

// WithLogger sets the logger used to report refresh failures.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Converter) { c.lg = lg }
}

// NewConverter creates a Converter backed by the given rate source.
func NewConverter(src Source, opts ...Option) *Converter {
	c := &Converter{
		source:  src,
		refresh: DefaultRefreshInterval,
		now:     time.Now,
		lg:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToSettlement converts an amount in major units of the given currency into
// settlement-currency minor units, rounding half away from zero.
func (c *Converter) ToSettlement(ctx context.Context, amount decimal.Decimal, code string) (int64, error) {
	if code == Settlement {
		return amount.Mul(minorFactor).Round(0).IntPart(), nil
	}

	rate, err := c.rate(ctx, code)
	if err != nil {
		return 0, err
	}
	return amount.Mul(rate).Mul(minorFactor).Round(0).IntPart(), nil
}

// NormalizeMinor converts an amount already expressed in minor units of the
// given currency into settlement-currency minor units.
func (c *Converter) NormalizeMinor(ctx context.Context, minor int64, code string) (int64, error) {
	if code == Settlement {
		return minor, nil
	}

	rate, err := c.rate(ctx, code)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromInt(minor).Mul(rate).Round(0).IntPart(), nil
}

// Rate returns the current conversion rate for one unit of the given currency
// expressed in the settlement currency.
func (c *Converter) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	if code == Settlement {
		return decimal.NewFromInt(1), nil
	}
	return c.rate(ctx, code)
}

// Fresh reports whether the cached table came from a successful fetch within
// the refresh interval. Used by the readiness probe.
func (c *Converter) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rates != nil && c.now().Sub(c.fetchedAt) < c.refresh
}

func (c *Converter) rate(ctx context.Context, code string) (decimal.Decimal, error) {
	rates := c.tableLocked(ctx)
	r, ok := rates[code]
	if !ok || !r.IsPositive() {
		return decimal.Decimal{}, &UnknownCurrencyError{Code: code}
	}
	return r, nil
}

// tableLocked returns the current rate table, refreshing it when stale.
// Refresh failures are logged and the last good table (or the fallback) is
// served instead; a settlement must never fail just because the feed is down
// while a cached table exists.
func (c *Converter) tableLocked(ctx context.Context) map[string]decimal.Decimal {
	c.mu.RLock()
	rates, fetchedAt := c.rates, c.fetchedAt
	c.mu.RUnlock()

	if rates != nil && c.now().Sub(fetchedAt) < c.refresh {
		return rates
	}

	fetched, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		fresh, err := c.source.Rates(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.rates = fresh
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		c.lg.Warn("Rate refresh failed, serving cached table", zap.Error(err))
		if rates != nil {
			return rates
		}
		return fallbackRates
	}

	return fetched.(map[string]decimal.Decimal)
}
