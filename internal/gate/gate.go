package gate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/payment"
)

// ErrMisconfigured means a protected path was hit but no signing secret is
// configured. Callers must answer 500, never a challenge.
var ErrMisconfigured = errors.New("signing secret not configured")

// DefaultCredentialTTL is the validity of issued credentials.
const DefaultCredentialTTL = time.Hour

// Decision is the gate's verdict for one protected request.
type Decision struct {
	// Allow grants access to the origin.
	Allow bool
	// FreshToken is non-empty when a credential was issued for this
	// request. It is never set alongside a pre-existing valid credential.
	FreshToken string
	// Response is the challenge or denial to send when Allow is false.
	Response *payment.Response
}

// Gate runs the challenge/verify/settle/credential state machine for
// protected paths.
type Gate struct {
	verifier payment.Verifier
	credTTL  time.Duration
	log      logger.Logger
}

func New(verifier payment.Verifier, credTTL time.Duration, log logger.Logger) *Gate {
	if credTTL <= 0 {
		credTTL = DefaultCredentialTTL
	}
	return &Gate{verifier: verifier, credTTL: credTTL, log: log}
}

// CredentialTTL returns the validity window used for issued credentials.
func (g *Gate) CredentialTTL() time.Duration {
	return g.credTTL
}

// Check evaluates a protected request. The sequence is fixed:
//
//  1. no secret -> ErrMisconfigured
//  2. valid credential cookie -> allow, verifier never invoked
//  3. verifier challenge or denial -> its response, verbatim
//  4. verified but settlement failed -> denial, credential discarded
//  5. settled -> allow with a fresh credential
func (g *Gate) Check(ctx context.Context, r *http.Request, rc *domain.RouteContext) (*Decision, error) {
	if rc.JWTSecret == "" {
		return nil, ErrMisconfigured
	}

	if HasValidCredential(r, rc.JWTSecret) {
		return &Decision{Allow: true}, nil
	}

	res, err := g.verifier.Verify(ctx, r, payment.Requirement{
		PayTo:          rc.PayTo,
		Network:        rc.Network,
		FacilitatorURL: rc.FacilitatorURL,
		PriceUSD:       rc.Rule.PriceUSD,
		Resource:       rc.Resource,
		Description:    rc.Rule.Description,
	})
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case payment.OutcomeChallenge, payment.OutcomeDenied:
		return &Decision{Allow: false, Response: res.Response}, nil
	case payment.OutcomeGranted:
		if res.SettleStatus >= http.StatusBadRequest {
			// Verified but not settled. Access is denied and no
			// credential may survive this request.
			g.log.Warn("settlement failed after verification",
				logger.String("resource", rc.Resource),
				logger.Int("settle_status", res.SettleStatus))
			return &Decision{Allow: false, Response: res.Response}, nil
		}
		token, err := IssueCredential(rc.JWTSecret, rc.Subdomain, g.credTTL)
		if err != nil {
			return nil, err
		}
		return &Decision{Allow: true, FreshToken: token}, nil
	default:
		return nil, errors.New("unknown verifier outcome")
	}
}
