package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence for the fields the SLA
// subsystem reads and mutates.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error
	ListOpenWithoutInstance(ctx context.Context, limit int) ([]string, error)
}

type ticketRepository struct {
	q Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(q Querier) TicketRepository {
	return &ticketRepository{q: q}
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, external_key, title, status, priority, assigned_team_id,
               first_response_due_at, due_at, first_response_at, completed_at, sla_paused_at,
               created_at, updated_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedTeamID,
		&ticket.FirstResponseDueAt,
		&ticket.DueAt,
		&ticket.FirstResponseAt,
		&ticket.CompletedAt,
		&ticket.SlaPausedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, assigned_team_id=$3,
            first_response_due_at=$4, due_at=$5, first_response_at=$6, completed_at=$7,
            sla_paused_at=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.q.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedTeamID,
		ticket.FirstResponseDueAt,
		ticket.DueAt,
		ticket.FirstResponseAt,
		ticket.CompletedAt,
		ticket.SlaPausedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error {
	const query = `UPDATE tickets SET priority=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.q.Exec(ctx, query, priority, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListOpenWithoutInstance returns ids of open tickets that have no SLA
// instance yet, oldest first, for the backfill pass.
func (r *ticketRepository) ListOpenWithoutInstance(ctx context.Context, limit int) ([]string, error) {
	const query = `
        SELECT t.id
        FROM tickets t
        LEFT JOIN sla_instances si ON si.ticket_id = t.id
        WHERE si.id IS NULL AND t.status NOT IN ('CLOSED','CANCELLED')
        ORDER BY t.created_at ASC
        LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}
