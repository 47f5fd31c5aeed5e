package domain

import "time"

// BreachType identifies which tracked deadline fired.
type BreachType string

const (
	BreachTypeFirstResponse BreachType = "FIRST_RESPONSE"
	BreachTypeResolution    BreachType = "RESOLUTION"
)

// SlaInstance is the per-ticket SLA tracking record, one-to-one with a
// ticket. NextDueAt is the single soonest unresolved deadline and is the
// key the breach scanner polls on.
type SlaInstance struct {
	ID                            string
	TicketID                      string
	PolicyConfigID                *string
	Priority                      TicketPriority
	FirstResponseDueAt            *time.Time
	ResolutionDueAt               *time.Time
	PausedAt                      *time.Time
	NextDueAt                     *time.Time
	FirstResponseBreachedAt       *time.Time
	ResolutionBreachedAt          *time.Time
	FirstResponseAtRiskNotifiedAt *time.Time
	ResolutionAtRiskNotifiedAt    *time.Time
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// DueInstance joins a scanned instance with its ticket's current fields.
type DueInstance struct {
	Instance SlaInstance
	Ticket   Ticket
}

// DeadlineState captures the inputs of the next-deadline computation.
type DeadlineState struct {
	Paused                bool
	FirstResponseDue      *time.Time
	ResolutionDue         *time.Time
	FirstResponseMet      bool
	ResolutionMet         bool
	FirstResponseBreached bool
	ResolutionBreached    bool
}

// NextDue returns the soonest unmet deadline. First response takes
// precedence over resolution: the resolution deadline never becomes current
// while first response is still pending and unbreached. A deadline counts as
// satisfied once it has been met or already breached. Paused tickets have no
// current deadline.
func (d DeadlineState) NextDue() *time.Time {
	if d.Paused {
		return nil
	}
	if !d.FirstResponseMet && !d.FirstResponseBreached && d.FirstResponseDue != nil {
		due := *d.FirstResponseDue
		return &due
	}
	if !d.ResolutionMet && !d.ResolutionBreached && d.ResolutionDue != nil {
		due := *d.ResolutionDue
		return &due
	}
	return nil
}

// PolicyTarget holds the per-priority hour targets of a policy.
type PolicyTarget struct {
	Priority           TicketPriority
	FirstResponseHours float64
	ResolutionHours    float64
}

// PolicyConfig is a named bundle of SLA targets plus escalation and
// notification settings, optionally assigned to teams or marked as the
// system default.
type PolicyConfig struct {
	ID                     string
	Name                   string
	IsDefault              bool
	Enabled                bool
	BusinessHoursOnly      bool
	EscalationEnabled      bool
	EscalationAfterPercent int
	BreachNotifyRoles      []string
	Targets                []PolicyTarget
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TargetFor returns the target row for the given priority.
func (p *PolicyConfig) TargetFor(priority TicketPriority) (PolicyTarget, bool) {
	for _, target := range p.Targets {
		if target.Priority == priority {
			return target, true
		}
	}
	return PolicyTarget{}, false
}

// fallbackTargets is the compiled-in default used when no enabled policy
// applies to a ticket.
var fallbackTargets = map[TicketPriority]PolicyTarget{
	TicketPriorityP1: {Priority: TicketPriorityP1, FirstResponseHours: 1, ResolutionHours: 4},
	TicketPriorityP2: {Priority: TicketPriorityP2, FirstResponseHours: 4, ResolutionHours: 24},
	TicketPriorityP3: {Priority: TicketPriorityP3, FirstResponseHours: 8, ResolutionHours: 72},
	TicketPriorityP4: {Priority: TicketPriorityP4, FirstResponseHours: 24, ResolutionHours: 168},
}

// FallbackTargetFor returns the compiled-in target for a priority. Unknown
// priorities map to the P4 row.
func FallbackTargetFor(priority TicketPriority) PolicyTarget {
	if target, ok := fallbackTargets[priority]; ok {
		return target
	}
	return fallbackTargets[TicketPriorityP4]
}
