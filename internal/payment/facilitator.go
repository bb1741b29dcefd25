package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/utils"
)

// PaymentHeader carries the client's payment payload, base64-encoded JSON.
const PaymentHeader = "X-PAYMENT"

const x402Version = 1

// usdcAssets maps network identifiers to the USDC contract used for pricing.
var usdcAssets = map[string]string{
	"base":         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	"base-sepolia": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
}

// requirements is the accepts entry of a 402 challenge and the
// paymentRequirements object sent to the facilitator.
type requirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
}

type challengeBody struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error,omitempty"`
	Accepts     []requirements `json:"accepts"`
}

type facilitatorRequest struct {
	X402Version         int             `json:"x402Version"`
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements requirements    `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

type settleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
}

// FacilitatorVerifier verifies payments against an x402 facilitator service.
// Verification and settlement are two separate calls: settlement can fail
// after verification succeeds, which is why Result carries SettleStatus
// instead of folding it into the outcome.
type FacilitatorVerifier struct {
	client *http.Client
	log    logger.Logger
}

func NewFacilitatorVerifier(log logger.Logger) *FacilitatorVerifier {
	return &FacilitatorVerifier{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

func (v *FacilitatorVerifier) Verify(ctx context.Context, r *http.Request, req Requirement) (*Result, error) {
	reqs, err := buildRequirements(req)
	if err != nil {
		return nil, err
	}

	header := r.Header.Get(PaymentHeader)
	if header == "" {
		resp, err := challenge(reqs, PaymentHeader+" header is required")
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeChallenge, Response: resp}, nil
	}

	payload, err := base64.StdEncoding.DecodeString(header)
	if err != nil || !json.Valid(payload) {
		resp, cerr := challenge(reqs, "Invalid "+PaymentHeader+" header")
		if cerr != nil {
			return nil, cerr
		}
		return &Result{Outcome: OutcomeDenied, Response: resp}, nil
	}

	vr, err := v.callVerify(ctx, req.FacilitatorURL, payload, reqs)
	if err != nil {
		return nil, err
	}
	if !vr.IsValid {
		reason := vr.InvalidReason
		if reason == "" {
			reason = "Payment verification failed"
		}
		resp, cerr := challenge(reqs, reason)
		if cerr != nil {
			return nil, cerr
		}
		return &Result{Outcome: OutcomeDenied, Response: resp}, nil
	}

	sr, err := v.callSettle(ctx, req.FacilitatorURL, payload, reqs)
	if err != nil {
		return nil, err
	}
	if !sr.Success {
		reason := sr.ErrorReason
		if reason == "" {
			reason = "Payment settlement failed"
		}
		v.log.Warn("payment settled with failure after verification",
			logger.String("resource", req.Resource), logger.String("reason", reason))
		resp, cerr := challenge(reqs, reason)
		if cerr != nil {
			return nil, cerr
		}
		return &Result{Outcome: OutcomeGranted, Response: resp, SettleStatus: http.StatusPaymentRequired}, nil
	}

	return &Result{Outcome: OutcomeGranted, SettleStatus: http.StatusOK}, nil
}

func (v *FacilitatorVerifier) callVerify(ctx context.Context, facilitatorURL string, payload []byte, reqs requirements) (*verifyResponse, error) {
	var out verifyResponse
	if err := v.post(ctx, facilitatorURL+"/verify", payload, reqs, &out); err != nil {
		return nil, fmt.Errorf("facilitator verify: %w", err)
	}
	return &out, nil
}

func (v *FacilitatorVerifier) callSettle(ctx context.Context, facilitatorURL string, payload []byte, reqs requirements) (*settleResponse, error) {
	var out settleResponse
	if err := v.post(ctx, facilitatorURL+"/settle", payload, reqs, &out); err != nil {
		return nil, fmt.Errorf("facilitator settle: %w", err)
	}
	return &out, nil
}

func (v *FacilitatorVerifier) post(ctx context.Context, url string, payload []byte, reqs requirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         x402Version,
		PaymentPayload:      payload,
		PaymentRequirements: reqs,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func buildRequirements(req Requirement) (requirements, error) {
	amount, err := priceToAtomic(req.PriceUSD)
	if err != nil {
		return requirements{}, fmt.Errorf("price %q: %w", req.PriceUSD, err)
	}
	asset, ok := usdcAssets[req.Network]
	if !ok {
		return requirements{}, fmt.Errorf("unsupported network %q", req.Network)
	}
	return requirements{
		Scheme:            "exact",
		Network:           req.Network,
		MaxAmountRequired: amount,
		Resource:          req.Resource,
		Description:       req.Description,
		PayTo:             req.PayTo,
		MaxTimeoutSeconds: 60,
		Asset:             asset,
	}, nil
}

func challenge(reqs requirements, errMsg string) (*Response, error) {
	body, err := json.Marshal(challengeBody{
		X402Version: x402Version,
		Error:       errMsg,
		Accepts:     []requirements{reqs},
	})
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &Response{Status: http.StatusPaymentRequired, Header: h, Body: body}, nil
}

// priceToAtomic converts a dollar price string like "$0.01" or "0.05" into
// USDC atomic units (6 decimals), keeping exact decimal arithmetic by working
// on the string.
func priceToAtomic(price string) (string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	if s == "" {
		return "", fmt.Errorf("empty price")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return "", fmt.Errorf("more than 6 decimal places")
	}
	frac += strings.Repeat("0", 6-len(frac))

	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid character %q", r)
		}
	}

	atomic := strings.TrimLeft(whole+frac, "0")
	if atomic == "" {
		atomic = "0"
	}
	return atomic, nil
}
