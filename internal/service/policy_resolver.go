package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/pkg/util"
)

// ResolvedPolicy is the outcome of policy resolution: the applicable policy
// id (nil when only the compiled-in fallback applied) and the target hours
// for the requested priority.
type ResolvedPolicy struct {
	PolicyConfigID *string
	Policy         *domain.PolicyConfig
	Target         domain.PolicyTarget
}

// PolicyResolver determines which SLA policy applies to a ticket. Pure
// read, no side effects.
type PolicyResolver struct {
	logger *zap.Logger
}

// NewPolicyResolver constructs the resolver.
func NewPolicyResolver(logger *zap.Logger) *PolicyResolver {
	return &PolicyResolver{logger: logger}
}

// Resolve returns the applicable policy for a priority/team pair.
// Precedence: enabled team assignment > enabled global default >
// compiled-in fallback table. A team's assigned policy wins even when the
// default also defines targets for the priority.
func (r *PolicyResolver) Resolve(ctx context.Context, store *repository.Store, priority domain.TicketPriority, teamID *string) (ResolvedPolicy, error) {
	if teamID != nil {
		policy, err := store.Policies.FindEnabledForTeam(ctx, *teamID)
		if err != nil && !util.IsNotFound(err) {
			return ResolvedPolicy{}, err
		}
		if policy != nil {
			return r.fromPolicy(policy, priority), nil
		}
	}

	policy, err := store.Policies.FindEnabledDefault(ctx)
	if err != nil && !util.IsNotFound(err) {
		return ResolvedPolicy{}, err
	}
	if policy != nil {
		return r.fromPolicy(policy, priority), nil
	}

	return ResolvedPolicy{Target: domain.FallbackTargetFor(priority)}, nil
}

func (r *PolicyResolver) fromPolicy(policy *domain.PolicyConfig, priority domain.TicketPriority) ResolvedPolicy {
	target, ok := policy.TargetFor(priority)
	if !ok {
		// policy without a row for this priority falls back to the
		// compiled-in table but keeps the policy linkage
		target = domain.FallbackTargetFor(priority)
	}
	id := policy.ID
	return ResolvedPolicy{PolicyConfigID: &id, Policy: policy, Target: target}
}
