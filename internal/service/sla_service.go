package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/pkg/util"
)

// SyncOptions tune one synchronization pass.
type SyncOptions struct {
	// PolicyConfigID forces the policy linkage instead of resolving it.
	PolicyConfigID *string
	// ResetFirstResponse clears the first-response breach and at-risk
	// markers, restarting that clock (ticket reopened).
	ResetFirstResponse bool
	// ResetResolution clears the resolution breach and at-risk markers.
	ResetResolution bool
}

// SlaService recomputes and persists the derived SLA instance of a ticket.
// Call sites invoke SyncFromTicket after every ticket mutation that can move
// a deadline; the breach scanner uses it for backfill and resynchronization.
type SlaService struct {
	db       repository.Querier
	newStore func(repository.Querier) *repository.Store
	resolver *PolicyResolver
	logger   *zap.Logger
}

// NewSlaService constructs the service around a default database handle.
func NewSlaService(db repository.Querier, resolver *PolicyResolver, logger *zap.Logger) *SlaService {
	return &SlaService{
		db:       db,
		newStore: repository.NewStore,
		resolver: resolver,
		logger:   logger,
	}
}

// SyncFromTicket recomputes the ticket's SLA instance from its current
// fields and upserts it. The optional q runs the sync inside an enclosing
// transaction; nil uses the service's own handle. A missing ticket is a
// no-op returning (nil, nil), never an error, so the ticket-mutation call
// path it is embedded in cannot break. Calling it twice with unchanged
// ticket state persists the identical instance.
func (s *SlaService) SyncFromTicket(ctx context.Context, ticketID string, opts SyncOptions, q repository.Querier) (*domain.SlaInstance, error) {
	if q == nil {
		q = s.db
	}
	store := s.newStore(q)

	ticket, err := store.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if util.IsNotFound(err) {
			s.logger.Debug("sla sync skipped, ticket not found", zap.String("ticket_id", ticketID))
			return nil, nil
		}
		return nil, err
	}

	existing, err := store.Instances.GetByTicketID(ctx, ticketID)
	if err != nil && !util.IsNotFound(err) {
		return nil, err
	}

	policyID, err := s.effectivePolicyID(ctx, store, ticket, existing, opts)
	if err != nil {
		return nil, err
	}

	instance := domain.SlaInstance{
		TicketID:           ticket.ID,
		PolicyConfigID:     policyID,
		Priority:           ticket.Priority,
		FirstResponseDueAt: ticket.FirstResponseDueAt,
		ResolutionDueAt:    ticket.DueAt,
		PausedAt:           ticket.SlaPausedAt,
	}
	if existing != nil {
		instance.ID = existing.ID
		instance.FirstResponseBreachedAt = existing.FirstResponseBreachedAt
		instance.ResolutionBreachedAt = existing.ResolutionBreachedAt
		instance.FirstResponseAtRiskNotifiedAt = existing.FirstResponseAtRiskNotifiedAt
		instance.ResolutionAtRiskNotifiedAt = existing.ResolutionAtRiskNotifiedAt
	}
	if opts.ResetFirstResponse {
		instance.FirstResponseBreachedAt = nil
		instance.FirstResponseAtRiskNotifiedAt = nil
	}
	if opts.ResetResolution {
		instance.ResolutionBreachedAt = nil
		instance.ResolutionAtRiskNotifiedAt = nil
	}

	instance.NextDueAt = domain.DeadlineState{
		Paused:                ticket.SlaPausedAt != nil,
		FirstResponseDue:      ticket.FirstResponseDueAt,
		ResolutionDue:         ticket.DueAt,
		FirstResponseMet:      ticket.FirstResponseAt != nil,
		ResolutionMet:         ticket.CompletedAt != nil,
		FirstResponseBreached: instance.FirstResponseBreachedAt != nil,
		ResolutionBreached:    instance.ResolutionBreachedAt != nil,
	}.NextDue()

	if err := store.Instances.Upsert(ctx, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

// effectivePolicyID picks the policy linkage: explicit override wins, an
// existing linkage is kept, otherwise the resolver runs once.
func (s *SlaService) effectivePolicyID(ctx context.Context, store *repository.Store, ticket *domain.Ticket, existing *domain.SlaInstance, opts SyncOptions) (*string, error) {
	if opts.PolicyConfigID != nil {
		return opts.PolicyConfigID, nil
	}
	if existing != nil && existing.PolicyConfigID != nil {
		return existing.PolicyConfigID, nil
	}
	resolved, err := s.resolver.Resolve(ctx, store, ticket.Priority, ticket.AssignedTeamID)
	if err != nil {
		return nil, err
	}
	return resolved.PolicyConfigID, nil
}
