package domain

import "time"

// Team represents a support team tickets are assigned to.
type Team struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TeamRole enumerates membership roles inside a team.
type TeamRole string

const (
	TeamRoleMember TeamRole = "MEMBER"
	TeamRoleLead   TeamRole = "LEAD"
)
