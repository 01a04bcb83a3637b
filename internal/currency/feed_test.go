package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSource_InvertsRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, Settlement, r.URL.Query().Get("base"))
		w.Header().Set("Content-Type", "application/json")
		// 1 EUR = 1.25 USD, so 1 USD = 0.80 EUR.
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":"1.25","GBP":"0.8"}}`))
	}))
	defer srv.Close()

	src := NewFeedSource(srv.URL)
	rates, err := src.Rates(context.Background())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.8").Equal(rates["USD"]),
		"USD: got %s", rates["USD"])
	assert.True(t, decimal.RequireFromString("1.25").Equal(rates["GBP"]),
		"GBP: got %s", rates["GBP"])
}

func TestFeedSource_RejectsWrongBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"EUR":"0.92"}}`))
	}))
	defer srv.Close()

	_, err := NewFeedSource(srv.URL).Rates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base")
}

func TestFeedSource_RejectsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFeedSource(srv.URL).Rates(context.Background())
	require.Error(t, err)
}

func TestFeedSource_SkipsNonPositiveRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":"1.25","BAD":"0"}}`))
	}))
	defer srv.Close()

	rates, err := NewFeedSource(srv.URL).Rates(context.Background())
	require.NoError(t, err)

	_, ok := rates["BAD"]
	assert.False(t, ok)
}
