package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/pkg/util"
)

// TicketService covers the ticket mutations that move SLA deadlines. Each
// operation updates the ticket, emits the matching event, and resynchronizes
// the SLA instance. The full ticket lifecycle lives upstream; these are the
// documented call sites of SyncFromTicket.
type TicketService struct {
	db         repository.Querier
	newStore   func(repository.Querier) *repository.Store
	sync       *SlaService
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	DB         repository.Querier
	Sync       *SlaService
	Dispatcher events.Dispatcher
}

// ReopenOptions describe how a reopened ticket's clocks restart.
type ReopenOptions struct {
	// NewDueAt is the re-set resolution deadline materialized upstream.
	NewDueAt *time.Time
	// ResetFirstResponse also restarts the first-response clock.
	ResetFirstResponse bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		db:         deps.DB,
		newStore:   repository.NewStore,
		sync:       deps.Sync,
		dispatcher: deps.Dispatcher,
	}
}

// RecordFirstResponse stamps the first response time once.
func (s *TicketService) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.FirstResponseAt != nil {
			return nil
		}
		ticket.FirstResponseAt = &at
		return nil
	}, SyncOptions{})
}

// Resolve marks the ticket resolved and stops the resolution clock.
func (s *TicketService) Resolve(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	now := time.Now()
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if !ticket.Status.IsOpen() {
			return util.NewConflict("ticket is closed", nil)
		}
		old := ticket.Status
		ticket.Status = domain.TicketStatusResolved
		ticket.CompletedAt = &now
		s.publishStatusChanged(ctx, ticket.ID, old, ticket.Status, "resolved")
		return nil
	}, SyncOptions{})
}

// Reopen restarts the resolution clock of a resolved or closed ticket. The
// resolution breach and at-risk markers are always reset; the first-response
// markers only when requested.
func (s *TicketService) Reopen(ctx context.Context, ticketID string, opts ReopenOptions) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.Status != domain.TicketStatusResolved && ticket.Status != domain.TicketStatusClosed {
			return util.NewConflict("only resolved or closed tickets can be reopened", nil)
		}
		old := ticket.Status
		ticket.Status = domain.TicketStatusInProgress
		ticket.CompletedAt = nil
		if opts.NewDueAt != nil {
			ticket.DueAt = opts.NewDueAt
		}
		if opts.ResetFirstResponse {
			ticket.FirstResponseAt = nil
		}
		s.publishStatusChanged(ctx, ticket.ID, old, ticket.Status, "reopened")
		return nil
	}, SyncOptions{ResetResolution: true, ResetFirstResponse: opts.ResetFirstResponse})
}

// Pause suspends SLA tracking for the ticket.
func (s *TicketService) Pause(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	now := time.Now()
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.SlaPausedAt == nil {
			ticket.SlaPausedAt = &now
		}
		return nil
	}, SyncOptions{})
}

// Resume lifts a pause and re-arms the deadlines.
func (s *TicketService) Resume(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		ticket.SlaPausedAt = nil
		return nil
	}, SyncOptions{})
}

// ChangePriority sets a new priority and resynchronizes.
func (s *TicketService) ChangePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, util.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.Priority == priority {
			return nil
		}
		old := ticket.Priority
		ticket.Priority = priority
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Payload: events.TicketPriorityChangedPayload{
				OldPriority: old,
				NewPriority: priority,
			},
		})
		return nil
	}, SyncOptions{})
}

// Reassign moves the ticket to another team (or unassigns it with nil).
func (s *TicketService) Reassign(ctx context.Context, ticketID string, teamID *string) (*domain.Ticket, error) {
	store := s.newStore(s.db)
	if teamID != nil {
		team, err := store.Teams.GetByID(ctx, *teamID)
		if err != nil {
			if util.IsNotFound(err) {
				return nil, util.NewNotFound("team", map[string]any{"team_id": *teamID})
			}
			return nil, err
		}
		if !team.IsActive {
			return nil, util.NewValidationError("team inactive", map[string]any{"team_id": *teamID})
		}
	}
	return s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		ticket.AssignedTeamID = teamID
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Payload:  events.TicketAssignedPayload{TeamID: teamID},
		})
		return nil
	}, SyncOptions{})
}

// mutate loads, applies, persists, then resynchronizes the SLA instance.
func (s *TicketService) mutate(ctx context.Context, ticketID string, apply func(*domain.Ticket) error, syncOpts SyncOptions) (*domain.Ticket, error) {
	store := s.newStore(s.db)
	ticket, err := store.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if util.IsNotFound(err) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	if err := apply(ticket); err != nil {
		return nil, err
	}
	if err := store.Tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	if _, err := s.sync.SyncFromTicket(ctx, ticket.ID, syncOpts, s.db); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) publishStatusChanged(ctx context.Context, ticketID string, old, next domain.TicketStatus, comment string) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticketID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: old,
			NewStatus: next,
			Comment:   comment,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor.Type == "" {
		event.Actor = events.Actor{Type: domain.SubjectTypeUser}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
