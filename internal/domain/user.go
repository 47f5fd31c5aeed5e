package domain

import "time"

// SubjectType differentiates the actor behind a domain event.
type SubjectType string

const (
	SubjectTypeUser   SubjectType = "USER"
	SubjectTypeSystem SubjectType = "SYSTEM"
)

// User is a staff user; leads of a ticket's assigned team receive breach
// notifications.
type User struct {
	ID        string
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
