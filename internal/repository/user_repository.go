package repository

import (
	"context"

	"github.com/spec-kit/sla-service/internal/domain"
)

// UserRepository resolves notification recipients.
type UserRepository interface {
	ListTeamLeads(ctx context.Context, teamID string) ([]domain.User, error)
}

type userRepository struct {
	q Querier
}

// NewUserRepository instantiates the repository.
func NewUserRepository(q Querier) UserRepository {
	return &userRepository{q: q}
}

// ListTeamLeads returns active users holding the lead role on a team.
func (r *userRepository) ListTeamLeads(ctx context.Context, teamID string) ([]domain.User, error) {
	const query = `
        SELECT u.id, u.name, u.email, u.active_flag, u.created_at, u.updated_at
        FROM users u
        JOIN team_members tm ON tm.user_id = u.id
        WHERE tm.team_id=$1 AND tm.role=$2 AND u.active_flag=TRUE
        ORDER BY u.created_at ASC`
	rows, err := r.q.Query(ctx, query, teamID, domain.TeamRoleLead)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
