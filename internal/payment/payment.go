package payment

import (
	"context"
	"net/http"
)

// Outcome is the verdict of a payment check for one request.
type Outcome int

const (
	// OutcomeChallenge means no payment was presented and the client must
	// be sent a 402 challenge describing what to pay.
	OutcomeChallenge Outcome = iota
	// OutcomeDenied means a payment was presented but rejected.
	OutcomeDenied
	// OutcomeGranted means the payment verified. SettleStatus still has to
	// be consulted before granting access.
	OutcomeGranted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeChallenge:
		return "challenge"
	case OutcomeDenied:
		return "denied"
	case OutcomeGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Requirement describes the payment a protected route demands.
type Requirement struct {
	PayTo          string
	Network        string
	FacilitatorURL string
	PriceUSD       string
	Resource       string
	Description    string
}

// Response is a ready-to-send HTTP response produced by a verifier, carried
// back to the pipeline instead of being written from inside the verifier.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Result is the explicit outcome of a verification attempt. Response is set
// for Challenge and Denied. SettleStatus is set for Granted: a value of 400
// or above means settlement failed after verification and access must not be
// granted.
type Result struct {
	Outcome      Outcome
	Response     *Response
	SettleStatus int
}

// Verifier checks whether a request carries an acceptable payment.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request, req Requirement) (*Result, error)
}
