package service

import (
	"context"
	"errors"
	"testing"

	"github.com/paysats/paysats-api/internal/config"
)

func TestRateServiceGetQuote(t *testing.T) {
	server := newRatesTestServer(t, "650000.00")
	cfg := &config.Config{
		Rates: config.RatesConfig{BaseURL: server.URL},
		Site:  config.SiteConfig{Currency: "ngn"},
	}
	svc := NewRateService(cfg)

	quote, err := svc.GetQuote(context.Background())
	if err != nil {
		t.Fatalf("get quote failed: %v", err)
	}
	if quote.Base != "BCH" {
		t.Fatalf("base want BCH got %s", quote.Base)
	}
	if quote.Currency != "NGN" {
		t.Fatalf("currency should be normalized to NGN, got %s", quote.Currency)
	}
	if quote.Rate != "650000.00" {
		t.Fatalf("rate want 650000.00 got %s", quote.Rate)
	}
}

func TestRateServiceCurrentRate(t *testing.T) {
	server := newRatesTestServer(t, "500000.00")
	cfg := &config.Config{
		Rates: config.RatesConfig{BaseURL: server.URL},
	}
	svc := NewRateService(cfg)

	rate, currency, err := svc.CurrentRate(context.Background())
	if err != nil {
		t.Fatalf("current rate failed: %v", err)
	}
	if currency != "NGN" {
		t.Fatalf("default currency want NGN got %s", currency)
	}
	if rate.StringFixed(2) != "500000.00" {
		t.Fatalf("rate want 500000.00 got %s", rate.StringFixed(2))
	}
}

func TestRateServiceUnavailable(t *testing.T) {
	cfg := &config.Config{
		Rates: config.RatesConfig{BaseURL: "http://127.0.0.1:1"},
	}
	svc := NewRateService(cfg)

	_, err := svc.GetQuote(context.Background())
	if !errors.Is(err, ErrRateUnavailable) {
		t.Fatalf("want ErrRateUnavailable got %v", err)
	}
}
