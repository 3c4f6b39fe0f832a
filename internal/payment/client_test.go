package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateCharge_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/charges" {
			t.Fatalf("path = %s, want /api/charges", r.URL.Path)
		}

		var req ChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AmountCents != 19000 {
			t.Fatalf("amount = %d, want 19000", req.AmountCents)
		}
		if req.Currency != "usd" {
			t.Fatalf("currency = %q, want usd", req.Currency)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Charge{ID: "ch_123", Status: "succeeded"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	charge, err := client.CreateCharge(ctx, ChargeRequest{
		AmountCents: 19000,
		Currency:    "usd",
		Description: "Invoice INV-20250309-0001",
		Source:      "tok_visa",
	})
	if err != nil {
		t.Fatalf("CreateCharge error: %v", err)
	}
	if charge.ID != "ch_123" {
		t.Fatalf("charge id = %q, want ch_123", charge.ID)
	}
}

func TestCreateCharge_Declined(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateCharge(ctx, ChargeRequest{AmountCents: 100, Currency: "usd", Source: "tok_declined"})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
}

func TestCreateCharge_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateCharge(ctx, ChargeRequest{AmountCents: 100, Currency: "usd", Source: "tok_visa"})
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestCreateCharge_NotConfigured(t *testing.T) {
	var client *Client

	_, err := client.CreateCharge(context.Background(), ChargeRequest{AmountCents: 100})
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
