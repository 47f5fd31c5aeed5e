package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// SlaInstanceRepository encapsulates persistence for SLA tracking records.
type SlaInstanceRepository interface {
	GetByTicketID(ctx context.Context, ticketID string) (*domain.SlaInstance, error)
	Upsert(ctx context.Context, instance *domain.SlaInstance) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DueInstance, error)
	MarkBreached(ctx context.Context, instanceID string, breachType domain.BreachType, now time.Time) (bool, error)
}

type slaInstanceRepository struct {
	q Querier
}

// NewSlaInstanceRepository instantiates repository.
func NewSlaInstanceRepository(q Querier) SlaInstanceRepository {
	return &slaInstanceRepository{q: q}
}

const instanceColumns = `
        id, ticket_id, policy_config_id, priority,
        first_response_due_at, resolution_due_at, paused_at, next_due_at,
        first_response_breached_at, resolution_breached_at,
        first_response_at_risk_notified_at, resolution_at_risk_notified_at,
        created_at, updated_at`

func (r *slaInstanceRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.SlaInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_instances WHERE ticket_id=$1`, instanceColumns)
	var instance domain.SlaInstance
	if err := r.q.QueryRow(ctx, query, ticketID).Scan(
		&instance.ID,
		&instance.TicketID,
		&instance.PolicyConfigID,
		&instance.Priority,
		&instance.FirstResponseDueAt,
		&instance.ResolutionDueAt,
		&instance.PausedAt,
		&instance.NextDueAt,
		&instance.FirstResponseBreachedAt,
		&instance.ResolutionBreachedAt,
		&instance.FirstResponseAtRiskNotifiedAt,
		&instance.ResolutionAtRiskNotifiedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &instance, nil
}

// Upsert writes the derived instance state, keyed by ticket_id so backfill
// cannot create duplicates.
func (r *slaInstanceRepository) Upsert(ctx context.Context, instance *domain.SlaInstance) error {
	const query = `
        INSERT INTO sla_instances (
            ticket_id, policy_config_id, priority,
            first_response_due_at, resolution_due_at, paused_at, next_due_at,
            first_response_breached_at, resolution_breached_at,
            first_response_at_risk_notified_at, resolution_at_risk_notified_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (ticket_id) DO UPDATE SET
            policy_config_id=EXCLUDED.policy_config_id,
            priority=EXCLUDED.priority,
            first_response_due_at=EXCLUDED.first_response_due_at,
            resolution_due_at=EXCLUDED.resolution_due_at,
            paused_at=EXCLUDED.paused_at,
            next_due_at=EXCLUDED.next_due_at,
            first_response_breached_at=EXCLUDED.first_response_breached_at,
            resolution_breached_at=EXCLUDED.resolution_breached_at,
            first_response_at_risk_notified_at=EXCLUDED.first_response_at_risk_notified_at,
            resolution_at_risk_notified_at=EXCLUDED.resolution_at_risk_notified_at,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.q.QueryRow(ctx, query,
		instance.TicketID,
		instance.PolicyConfigID,
		instance.Priority,
		instance.FirstResponseDueAt,
		instance.ResolutionDueAt,
		instance.PausedAt,
		instance.NextDueAt,
		instance.FirstResponseBreachedAt,
		instance.ResolutionBreachedAt,
		instance.FirstResponseAtRiskNotifiedAt,
		instance.ResolutionAtRiskNotifiedAt,
	).Scan(&instance.ID, &instance.CreatedAt, &instance.UpdatedAt)
}

// ListDue selects instances whose next deadline has passed, soonest first,
// joined with the ticket fields the breach handler evaluates.
func (r *slaInstanceRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DueInstance, error) {
	query := fmt.Sprintf(`
        SELECT %s,
               t.external_key, t.title, t.status, t.priority, t.assigned_team_id,
               t.first_response_due_at, t.due_at, t.first_response_at, t.completed_at, t.sla_paused_at
        FROM sla_instances si
        JOIN tickets t ON t.id = si.ticket_id
        WHERE si.next_due_at IS NOT NULL AND si.next_due_at <= $1
        ORDER BY si.next_due_at ASC
        LIMIT $2`, prefixColumns("si", instanceColumns))
	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DueInstance
	for rows.Next() {
		var item domain.DueInstance
		if err := rows.Scan(
			&item.Instance.ID,
			&item.Instance.TicketID,
			&item.Instance.PolicyConfigID,
			&item.Instance.Priority,
			&item.Instance.FirstResponseDueAt,
			&item.Instance.ResolutionDueAt,
			&item.Instance.PausedAt,
			&item.Instance.NextDueAt,
			&item.Instance.FirstResponseBreachedAt,
			&item.Instance.ResolutionBreachedAt,
			&item.Instance.FirstResponseAtRiskNotifiedAt,
			&item.Instance.ResolutionAtRiskNotifiedAt,
			&item.Instance.CreatedAt,
			&item.Instance.UpdatedAt,
			&item.Ticket.ExternalKey,
			&item.Ticket.Title,
			&item.Ticket.Status,
			&item.Ticket.Priority,
			&item.Ticket.AssignedTeamID,
			&item.Ticket.FirstResponseDueAt,
			&item.Ticket.DueAt,
			&item.Ticket.FirstResponseAt,
			&item.Ticket.CompletedAt,
			&item.Ticket.SlaPausedAt,
		); err != nil {
			return nil, err
		}
		item.Ticket.ID = item.Instance.TicketID
		result = append(result, item)
	}
	return result, rows.Err()
}

// MarkBreached records a breach with a guarded update: it only succeeds when
// the marker is still null. A false return means a concurrent writer already
// recorded this breach and the caller must treat the item as handled.
func (r *slaInstanceRepository) MarkBreached(ctx context.Context, instanceID string, breachType domain.BreachType, now time.Time) (bool, error) {
	column := "first_response_breached_at"
	if breachType == domain.BreachTypeResolution {
		column = "resolution_breached_at"
	}
	query := fmt.Sprintf(`
        UPDATE sla_instances SET %s=$1, updated_at=NOW()
        WHERE id=$2 AND %s IS NULL`, column, column)
	cmd, err := r.q.Exec(ctx, query, now, instanceID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
