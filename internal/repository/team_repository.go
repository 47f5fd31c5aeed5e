package repository

import (
	"context"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TeamRepository reads teams for reassignment validation.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
}

type teamRepository struct {
	q Querier
}

// NewTeamRepository constructs repository.
func NewTeamRepository(q Querier) TeamRepository {
	return &teamRepository{q: q}
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `
        SELECT id, name, description, is_active, created_at, updated_at
        FROM teams WHERE id=$1`
	var team domain.Team
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.Description,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}
