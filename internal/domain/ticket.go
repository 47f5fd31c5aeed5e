package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// IsOpen reports whether the ticket still counts as open for SLA tracking.
func (s TicketStatus) IsOpen() bool {
	return s != TicketStatusClosed && s != TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency, P1 most urgent.
type TicketPriority string

const (
	TicketPriorityP1 TicketPriority = "P1"
	TicketPriorityP2 TicketPriority = "P2"
	TicketPriorityP3 TicketPriority = "P3"
	TicketPriorityP4 TicketPriority = "P4"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityP1: 1,
	TicketPriorityP2: 2,
	TicketPriorityP3: 3,
	TicketPriorityP4: 4,
}

// Valid reports whether the priority is one of P1..P4.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Escalate returns the next more urgent priority on the fixed ladder
// P4->P3->P2->P1. P1 is terminal and returns false.
func (p TicketPriority) Escalate() (TicketPriority, bool) {
	switch p {
	case TicketPriorityP4:
		return TicketPriorityP3, true
	case TicketPriorityP3:
		return TicketPriorityP2, true
	case TicketPriorityP2:
		return TicketPriorityP1, true
	default:
		return p, false
	}
}

// Ticket is the aggregate for support requests. Only the fields the SLA
// subsystem reads and mutates are modeled here; the rest of the ticket
// lifecycle lives with upstream collaborators.
type Ticket struct {
	ID                 string
	ExternalKey        string
	Title              string
	Status             TicketStatus
	Priority           TicketPriority
	AssignedTeamID     *string
	FirstResponseDueAt *time.Time
	DueAt              *time.Time
	FirstResponseAt    *time.Time
	CompletedAt        *time.Time
	SlaPausedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
