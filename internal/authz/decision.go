package authz

import "net/http"

// Decision is the terminal state of one authorization check.
type Decision int

const (
	// DecisionNoRequirement means the target operation declares no required
	// permission; the request proceeds unchecked.
	DecisionNoRequirement Decision = iota
	// DecisionUnauthenticated means no usable principal was presented.
	DecisionUnauthenticated
	// DecisionAllowed means the caller holds the required (module, operation).
	DecisionAllowed
	// DecisionDenied means the caller lacks the required (module, operation).
	DecisionDenied
)

func (d Decision) String() string {
	switch d {
	case DecisionNoRequirement:
		return "NO_REQUIREMENT"
	case DecisionUnauthenticated:
		return "UNAUTHENTICATED"
	case DecisionAllowed:
		return "ALLOWED"
	case DecisionDenied:
		return "DENIED"
	default:
		return "UNKNOWN"
	}
}

// Outcome carries the decision plus the HTTP status to surface it with.
// Status is zero when the request should proceed.
type Outcome struct {
	Decision     Decision
	Status       int
	Reason       string
	UsedFallback bool
}

// Proceed reports whether the request may continue to the handler.
func (o Outcome) Proceed() bool {
	return o.Decision == DecisionAllowed || o.Decision == DecisionNoRequirement
}

func allowed(reason string, fallback bool) Outcome {
	return Outcome{Decision: DecisionAllowed, Reason: reason, UsedFallback: fallback}
}

func denied(reason string, fallback bool) Outcome {
	return Outcome{Decision: DecisionDenied, Status: http.StatusForbidden, Reason: reason, UsedFallback: fallback}
}

func unauthenticated(reason string) Outcome {
	return Outcome{Decision: DecisionUnauthenticated, Status: http.StatusUnauthorized, Reason: reason}
}

// Principal is the authenticated caller as seen by the filter. Permissions is
// the flat module-key claim list from the token, used only when the resolver
// is unavailable.
type Principal struct {
	Authenticated bool
	UserID        string
	Permissions   []string
}
