package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/x402hub/paygate/internal/logger"
)

func testRequirement(facilitatorURL string) Requirement {
	return Requirement{
		PayTo:          "0x1111111111111111111111111111111111111111",
		Network:        "base-sepolia",
		FacilitatorURL: facilitatorURL,
		PriceUSD:       "$0.01",
		Resource:       "https://acme.example.com/reports",
		Description:    "Reports access",
	}
}

func TestPriceToAtomic(t *testing.T) {
	tests := []struct {
		price   string
		want    string
		wantErr bool
	}{
		{"$0.01", "10000", false},
		{"0.01", "10000", false},
		{"$1", "1000000", false},
		{"1.5", "1500000", false},
		{"$0.000001", "1", false},
		{"0", "0", false},
		{".5", "500000", false},
		{"$0.0000001", "", true},
		{"abc", "", true},
		{"", "", true},
		{"$", "", true},
	}
	for _, tt := range tests {
		got, err := priceToAtomic(tt.price)
		if tt.wantErr {
			if err == nil {
				t.Errorf("priceToAtomic(%q) = %q, want error", tt.price, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("priceToAtomic(%q) error = %v", tt.price, err)
			continue
		}
		if got != tt.want {
			t.Errorf("priceToAtomic(%q) = %q, want %q", tt.price, got, tt.want)
		}
	}
}

func TestVerifyNoHeaderIssuesChallenge(t *testing.T) {
	v := NewFacilitatorVerifier(logger.New("error", false))
	r := httptest.NewRequest(http.MethodGet, "https://acme.example.com/reports", nil)

	res, err := v.Verify(context.Background(), r, testRequirement("http://unused"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.Outcome != OutcomeChallenge {
		t.Fatalf("outcome = %v, want challenge", res.Outcome)
	}
	if res.Response == nil || res.Response.Status != http.StatusPaymentRequired {
		t.Fatalf("response = %+v, want 402", res.Response)
	}

	var body challengeBody
	if err := json.Unmarshal(res.Response.Body, &body); err != nil {
		t.Fatalf("challenge body not JSON: %v", err)
	}
	if body.X402Version != 1 {
		t.Errorf("x402Version = %d, want 1", body.X402Version)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("accepts = %d entries, want 1", len(body.Accepts))
	}
	acc := body.Accepts[0]
	if acc.Scheme != "exact" || acc.Network != "base-sepolia" {
		t.Errorf("accepts entry = %+v", acc)
	}
	if acc.MaxAmountRequired != "10000" {
		t.Errorf("maxAmountRequired = %q, want 10000", acc.MaxAmountRequired)
	}
	if acc.Resource != "https://acme.example.com/reports" {
		t.Errorf("resource = %q", acc.Resource)
	}
}

func TestVerifyHappyPath(t *testing.T) {
	var verified, settled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req facilitatorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("facilitator request not JSON: %v", err)
		}
		if req.PaymentRequirements.PayTo == "" {
			t.Error("paymentRequirements missing payTo")
		}
		switch r.URL.Path {
		case "/verify":
			verified = true
			json.NewEncoder(w).Encode(verifyResponse{IsValid: true})
		case "/settle":
			settled = true
			json.NewEncoder(w).Encode(settleResponse{Success: true, Transaction: "0xdeadbeef"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	v := NewFacilitatorVerifier(logger.New("error", false))
	r := httptest.NewRequest(http.MethodGet, "https://acme.example.com/reports", nil)
	r.Header.Set(PaymentHeader, base64.StdEncoding.EncodeToString([]byte(`{"scheme":"exact"}`)))

	res, err := v.Verify(context.Background(), r, testRequirement(srv.URL))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.Outcome != OutcomeGranted {
		t.Fatalf("outcome = %v, want granted", res.Outcome)
	}
	if res.SettleStatus != http.StatusOK {
		t.Errorf("settle status = %d, want 200", res.SettleStatus)
	}
	if !verified || !settled {
		t.Errorf("facilitator calls: verified=%v settled=%v", verified, settled)
	}
}

func TestVerifyInvalidPaymentDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("settle called for invalid payment")
		}
		json.NewEncoder(w).Encode(verifyResponse{IsValid: false, InvalidReason: "insufficient funds"})
	}))
	defer srv.Close()

	v := NewFacilitatorVerifier(logger.New("error", false))
	r := httptest.NewRequest(http.MethodGet, "https://acme.example.com/reports", nil)
	r.Header.Set(PaymentHeader, base64.StdEncoding.EncodeToString([]byte(`{}`)))

	res, err := v.Verify(context.Background(), r, testRequirement(srv.URL))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Fatalf("outcome = %v, want denied", res.Outcome)
	}
	if res.Response == nil || res.Response.Status != http.StatusPaymentRequired {
		t.Fatalf("response = %+v, want 402", res.Response)
	}
}

func TestVerifySettlementFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(verifyResponse{IsValid: true})
		case "/settle":
			json.NewEncoder(w).Encode(settleResponse{Success: false, ErrorReason: "tx reverted"})
		}
	}))
	defer srv.Close()

	v := NewFacilitatorVerifier(logger.New("error", false))
	r := httptest.NewRequest(http.MethodGet, "https://acme.example.com/reports", nil)
	r.Header.Set(PaymentHeader, base64.StdEncoding.EncodeToString([]byte(`{}`)))

	res, err := v.Verify(context.Background(), r, testRequirement(srv.URL))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.Outcome != OutcomeGranted {
		t.Fatalf("outcome = %v, want granted with failed settle status", res.Outcome)
	}
	if res.SettleStatus < 400 {
		t.Errorf("settle status = %d, want >= 400", res.SettleStatus)
	}
	if res.Response == nil {
		t.Error("settlement failure carries no denial response")
	}
}

func TestVerifyMalformedHeaderDenied(t *testing.T) {
	v := NewFacilitatorVerifier(logger.New("error", false))
	r := httptest.NewRequest(http.MethodGet, "https://acme.example.com/reports", nil)
	r.Header.Set(PaymentHeader, "not-base64!!!")

	res, err := v.Verify(context.Background(), r, testRequirement("http://unused"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Fatalf("outcome = %v, want denied", res.Outcome)
	}
}

func TestVerifyUnsupportedNetwork(t *testing.T) {
	v := NewFacilitatorVerifier(logger.New("error", false))
	r := httptest.NewRequest(http.MethodGet, "https://acme.example.com/reports", nil)

	req := testRequirement("http://unused")
	req.Network = "dogecoin"
	if _, err := v.Verify(context.Background(), r, req); err == nil {
		t.Fatal("Verify() with unsupported network: want error")
	}
}
