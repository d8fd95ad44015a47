package engine

import (
	"context"

	auditdomain "merchant-voice-auth/internal/audit/domain"
)

// Input is what the routing policy sees for one attempt.
type Input struct {
	MerchantFound bool
	Score         int
	Reasons       []auditdomain.ReasonCode
}

// Router maps a scored attempt to a decision.
type Router interface {
	// Route returns the decision for in. Implementations fall back to the built-in thresholds
	// when their own evaluation fails, and report that failure as the error.
	Route(ctx context.Context, in Input) (auditdomain.Decision, error)
}
