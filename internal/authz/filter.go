package authz

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"authgate/internal/events"
	"authgate/internal/permissions"
	"authgate/internal/tenant"

	console "authgate/internal/utils/logger"

	"github.com/google/uuid"
)

// Filter decides whether a caller may perform an operation that declares a
// required (module, operation) pair. Per-request state machine:
// Unchecked -> NoRequirement | Unauthenticated | Denied | Allowed, all
// terminal. One Check call per request; the filter itself is stateless and
// safe for concurrent use.
type Filter struct {
	resolver *permissions.Resolver
	log      *console.Logger
}

func NewFilter(resolver *permissions.Resolver) *Filter {
	return &Filter{
		resolver: resolver,
		log:      console.New("AUTHZ"),
	}
}

// FallbackSignal is the payload emitted on the event bus whenever a check
// degrades to claim-based matching.
type FallbackSignal struct {
	UserID    string
	Module    string
	Operation string
	Err       error
}

// Check evaluates the requirement against the caller's permission closure.
// Resolver failures degrade to the flat permission claims carried in the
// token: module-name matching only, operation granularity is lost. That tier
// is preserved deliberately, and every use of it emits an observability
// signal. Any unexpected failure inside the check denies with 500 semantics.
func (f *Filter) Check(ctx context.Context, requirement *Requirement, principal Principal, tc tenant.Context) (outcome Outcome) {
	if requirement == nil {
		return Outcome{Decision: DecisionNoRequirement, Reason: "no requirement declared"}
	}

	defer func() {
		if r := recover(); r != nil {
			_ = f.log.Error("authorization check panicked user=%s module=%s operation=%s err=%v",
				fmt.Errorf("panic: %v", r), principal.UserID, requirement.Module, requirement.Operation)
			outcome = Outcome{
				Decision: DecisionDenied,
				Status:   http.StatusInternalServerError,
				Reason:   "authorization check failed",
			}
		}
		f.audit(principal.UserID, requirement, tc, outcome)
	}()

	if !principal.Authenticated {
		return unauthenticated("no authenticated principal")
	}
	if _, err := uuid.Parse(principal.UserID); err != nil {
		return unauthenticated("missing or malformed user id claim")
	}

	closure, err := f.resolver.Resolve(ctx, principal.UserID, tc.Slug)
	if err != nil {
		return f.checkClaims(requirement, principal, err)
	}

	module, ok := closure.Module(requirement.Module)
	if !ok {
		return denied(fmt.Sprintf("module %s not granted", requirement.Module), false)
	}
	if !module.Allows(requirement.Operation) {
		return denied(fmt.Sprintf("operation %s not granted on module %s", requirement.Operation, requirement.Module), false)
	}
	return allowed("granted by permission closure", false)
}

// checkClaims is the degraded tier: flat module-key claims, no operation
// granularity. RequiredModule present among claims -> allowed.
func (f *Filter) checkClaims(requirement *Requirement, principal Principal, cause error) Outcome {
	f.log.Warn("resolver unavailable for user %s, falling back to token claims: %v", principal.UserID, cause)
	events.Emit(events.EventAuthzFallback, FallbackSignal{
		UserID:    principal.UserID,
		Module:    requirement.Module,
		Operation: requirement.Operation,
		Err:       cause,
	})

	for _, claim := range principal.Permissions {
		if strings.EqualFold(claim, requirement.Module) {
			return allowed("granted by token claim (operation check skipped)", true)
		}
	}
	return denied(fmt.Sprintf("module %s not present in token claims", requirement.Module), true)
}

func (f *Filter) audit(userID string, requirement *Requirement, tc tenant.Context, outcome Outcome) {
	f.log.Audit("user=%s module=%s operation=%s tenant=%s outcome=%s fallback=%t reason=%q",
		userID, requirement.Module, requirement.Operation, tc.Slug, outcome.Decision, outcome.UsedFallback, outcome.Reason)
}
