package repository

import (
	"context"

	"github.com/spec-kit/sla-service/internal/domain"
)

// PolicyRepository reads SLA policy configurations. Policy editing is an
// external concern; this subsystem only resolves which policy applies.
type PolicyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.PolicyConfig, error)
	FindEnabledForTeam(ctx context.Context, teamID string) (*domain.PolicyConfig, error)
	FindEnabledDefault(ctx context.Context) (*domain.PolicyConfig, error)
}

type policyRepository struct {
	q Querier
}

// NewPolicyRepository instantiates repository.
func NewPolicyRepository(q Querier) PolicyRepository {
	return &policyRepository{q: q}
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.PolicyConfig, error) {
	const query = `
        SELECT id, name, is_default, enabled, business_hours_only,
               escalation_enabled, escalation_after_percent, breach_notify_roles,
               created_at, updated_at
        FROM sla_policy_configs WHERE id=$1`
	return r.fetchWithTargets(ctx, query, id)
}

// FindEnabledForTeam returns the enabled policy assigned to the team.
// Multiple eligible rows should not occur under the assignment invariant;
// the most recently updated one wins if they do.
func (r *policyRepository) FindEnabledForTeam(ctx context.Context, teamID string) (*domain.PolicyConfig, error) {
	const query = `
        SELECT p.id, p.name, p.is_default, p.enabled, p.business_hours_only,
               p.escalation_enabled, p.escalation_after_percent, p.breach_notify_roles,
               p.created_at, p.updated_at
        FROM sla_policy_configs p
        JOIN sla_policy_team_assignments a ON a.policy_config_id = p.id
        WHERE a.team_id=$1 AND p.enabled=TRUE
        ORDER BY p.updated_at DESC
        LIMIT 1`
	return r.fetchWithTargets(ctx, query, teamID)
}

// FindEnabledDefault returns the enabled system-wide default policy.
func (r *policyRepository) FindEnabledDefault(ctx context.Context) (*domain.PolicyConfig, error) {
	const query = `
        SELECT id, name, is_default, enabled, business_hours_only,
               escalation_enabled, escalation_after_percent, breach_notify_roles,
               created_at, updated_at
        FROM sla_policy_configs
        WHERE is_default=TRUE AND enabled=TRUE
        ORDER BY updated_at DESC
        LIMIT 1`
	return r.fetchWithTargets(ctx, query)
}

func (r *policyRepository) fetchWithTargets(ctx context.Context, query string, args ...any) (*domain.PolicyConfig, error) {
	var policy domain.PolicyConfig
	if err := r.q.QueryRow(ctx, query, args...).Scan(
		&policy.ID,
		&policy.Name,
		&policy.IsDefault,
		&policy.Enabled,
		&policy.BusinessHoursOnly,
		&policy.EscalationEnabled,
		&policy.EscalationAfterPercent,
		&policy.BreachNotifyRoles,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	targets, err := r.loadTargets(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	policy.Targets = targets
	return &policy, nil
}

func (r *policyRepository) loadTargets(ctx context.Context, policyID string) ([]domain.PolicyTarget, error) {
	const query = `
        SELECT priority, first_response_hours, resolution_hours
        FROM sla_policy_targets WHERE policy_config_id=$1`
	rows, err := r.q.Query(ctx, query, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PolicyTarget
	for rows.Next() {
		var target domain.PolicyTarget
		if err := rows.Scan(&target.Priority, &target.FirstResponseHours, &target.ResolutionHours); err != nil {
			return nil, err
		}
		result = append(result, target)
	}
	return result, rows.Err()
}
