package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/pkg/util"
)

func newTestTicketService(m *mocks, dispatcher events.Dispatcher) *TicketService {
	svc := NewTicketService(TicketDependencies{
		Sync:       newTestSlaService(m),
		Dispatcher: dispatcher,
	})
	svc.newStore = func(repository.Querier) *repository.Store { return m.store }
	return svc
}

func TestRecordFirstResponseMovesClockToResolution(t *testing.T) {
	m := newMocks()
	dispatcher := &capturingDispatcher{}
	svc := newTestTicketService(m, dispatcher)

	now := time.Now()
	frDue := now.Add(time.Hour)
	resDue := now.Add(8 * time.Hour)
	ticket := baseTicket("t1")
	ticket.FirstResponseDueAt = timePtr(frDue)
	ticket.DueAt = timePtr(resDue)
	m.tickets.tickets[ticket.ID] = ticket

	updated, err := svc.RecordFirstResponse(context.Background(), ticket.ID, now)
	require.NoError(t, err)
	require.NotNil(t, updated.FirstResponseAt)

	instance := m.instances.instances[ticket.ID]
	require.NotNil(t, instance.NextDueAt)
	require.True(t, instance.NextDueAt.Equal(resDue))
}

func TestRecordFirstResponseIsIdempotent(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	first := time.Now().Add(-time.Hour)
	ticket := baseTicket("t1")
	ticket.FirstResponseAt = timePtr(first)
	m.tickets.tickets[ticket.ID] = ticket

	updated, err := svc.RecordFirstResponse(context.Background(), ticket.ID, time.Now())
	require.NoError(t, err)
	require.True(t, updated.FirstResponseAt.Equal(first))
}

func TestResolveStopsResolutionClock(t *testing.T) {
	m := newMocks()
	dispatcher := &capturingDispatcher{}
	svc := newTestTicketService(m, dispatcher)

	now := time.Now()
	ticket := baseTicket("t1")
	ticket.FirstResponseAt = timePtr(now.Add(-time.Hour))
	ticket.DueAt = timePtr(now.Add(8 * time.Hour))
	m.tickets.tickets[ticket.ID] = ticket

	updated, err := svc.Resolve(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusResolved, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	instance := m.instances.instances[ticket.ID]
	require.Nil(t, instance.NextDueAt)

	statusEvents := dispatcher.byType(events.EventTicketStatusChanged)
	require.Len(t, statusEvents, 1)
}

func TestResolveClosedTicketConflicts(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	ticket := baseTicket("t1")
	ticket.Status = domain.TicketStatusClosed
	m.tickets.tickets[ticket.ID] = ticket

	_, err := svc.Resolve(context.Background(), ticket.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, "CONFLICT", domainErr.Code)
}

func TestReopenResetsResolutionMarkers(t *testing.T) {
	m := newMocks()
	dispatcher := &capturingDispatcher{}
	svc := newTestTicketService(m, dispatcher)

	now := time.Now()
	breachedAt := now.Add(-time.Hour)
	ticket := baseTicket("t1")
	ticket.Status = domain.TicketStatusResolved
	ticket.FirstResponseAt = timePtr(now.Add(-3 * time.Hour))
	ticket.CompletedAt = timePtr(now.Add(-30 * time.Minute))
	ticket.DueAt = timePtr(now.Add(-2 * time.Hour))
	m.tickets.tickets[ticket.ID] = ticket
	m.instances.instances[ticket.ID] = &domain.SlaInstance{
		ID:                   "instance-x",
		TicketID:             ticket.ID,
		Priority:             ticket.Priority,
		ResolutionDueAt:      ticket.DueAt,
		ResolutionBreachedAt: timePtr(breachedAt),
	}

	newDue := now.Add(24 * time.Hour)
	updated, err := svc.Reopen(context.Background(), ticket.ID, ReopenOptions{NewDueAt: timePtr(newDue)})
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.Nil(t, updated.CompletedAt)
	require.NotNil(t, updated.FirstResponseAt) // first-response history kept

	instance := m.instances.instances[ticket.ID]
	require.Nil(t, instance.ResolutionBreachedAt)
	require.NotNil(t, instance.NextDueAt)
	require.True(t, instance.NextDueAt.Equal(newDue))
}

func TestReopenWithFirstResponseReset(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	now := time.Now()
	ticket := baseTicket("t1")
	ticket.Status = domain.TicketStatusClosed
	ticket.FirstResponseAt = timePtr(now.Add(-2 * time.Hour))
	ticket.FirstResponseDueAt = timePtr(now.Add(time.Hour))
	ticket.CompletedAt = timePtr(now.Add(-time.Hour))
	m.tickets.tickets[ticket.ID] = ticket
	m.instances.instances[ticket.ID] = &domain.SlaInstance{
		ID:                      "instance-x",
		TicketID:                ticket.ID,
		Priority:                ticket.Priority,
		FirstResponseDueAt:      ticket.FirstResponseDueAt,
		FirstResponseBreachedAt: timePtr(now.Add(-90 * time.Minute)),
	}

	updated, err := svc.Reopen(context.Background(), ticket.ID, ReopenOptions{ResetFirstResponse: true})
	require.NoError(t, err)
	require.Nil(t, updated.FirstResponseAt)

	instance := m.instances.instances[ticket.ID]
	require.Nil(t, instance.FirstResponseBreachedAt)
	require.NotNil(t, instance.NextDueAt)
	require.True(t, instance.NextDueAt.Equal(*ticket.FirstResponseDueAt))
}

func TestReopenOpenTicketConflicts(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	ticket := baseTicket("t1")
	m.tickets.tickets[ticket.ID] = ticket

	_, err := svc.Reopen(context.Background(), ticket.ID, ReopenOptions{})
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, "CONFLICT", domainErr.Code)
}

func TestPauseAndResume(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	now := time.Now()
	frDue := now.Add(time.Hour)
	ticket := baseTicket("t1")
	ticket.FirstResponseDueAt = timePtr(frDue)
	m.tickets.tickets[ticket.ID] = ticket

	updated, err := svc.Pause(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.SlaPausedAt)
	require.Nil(t, m.instances.instances[ticket.ID].NextDueAt)

	updated, err = svc.Resume(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Nil(t, updated.SlaPausedAt)
	instance := m.instances.instances[ticket.ID]
	require.NotNil(t, instance.NextDueAt)
	require.True(t, instance.NextDueAt.Equal(frDue))
}

func TestChangePriorityRejectsUnknownValue(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	_, err := svc.ChangePriority(context.Background(), "t1", domain.TicketPriority("P9"))
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, "VALIDATION_FAILED", domainErr.Code)
}

func TestChangePrioritySyncsCachedPriority(t *testing.T) {
	m := newMocks()
	dispatcher := &capturingDispatcher{}
	svc := newTestTicketService(m, dispatcher)

	ticket := baseTicket("t1")
	m.tickets.tickets[ticket.ID] = ticket

	updated, err := svc.ChangePriority(context.Background(), ticket.ID, domain.TicketPriorityP1)
	require.NoError(t, err)
	require.Equal(t, domain.TicketPriorityP1, updated.Priority)
	require.Equal(t, domain.TicketPriorityP1, m.instances.instances[ticket.ID].Priority)
	require.Len(t, dispatcher.byType(events.EventTicketPriorityChanged), 1)
}

func TestChangePrioritySameValueIsNoOp(t *testing.T) {
	m := newMocks()
	dispatcher := &capturingDispatcher{}
	svc := newTestTicketService(m, dispatcher)

	ticket := baseTicket("t1")
	m.tickets.tickets[ticket.ID] = ticket

	_, err := svc.ChangePriority(context.Background(), ticket.ID, ticket.Priority)
	require.NoError(t, err)
	require.Empty(t, dispatcher.published)
}

func TestReassignValidatesTeam(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	ticket := baseTicket("t1")
	m.tickets.tickets[ticket.ID] = ticket

	_, err := svc.Reassign(context.Background(), ticket.ID, strPtr("ghost"))
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, "NOT_FOUND", domainErr.Code)

	m.teams.teams["team-1"] = &domain.Team{ID: "team-1", Name: "support", IsActive: false}
	_, err = svc.Reassign(context.Background(), ticket.ID, strPtr("team-1"))
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, "VALIDATION_FAILED", domainErr.Code)
}

func TestReassignToActiveTeam(t *testing.T) {
	m := newMocks()
	dispatcher := &capturingDispatcher{}
	svc := newTestTicketService(m, dispatcher)

	ticket := baseTicket("t1")
	m.tickets.tickets[ticket.ID] = ticket
	m.teams.teams["team-1"] = &domain.Team{ID: "team-1", Name: "support", IsActive: true}

	updated, err := svc.Reassign(context.Background(), ticket.ID, strPtr("team-1"))
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTeamID)
	require.Equal(t, "team-1", *updated.AssignedTeamID)
	require.Len(t, dispatcher.byType(events.EventTicketAssigned), 1)
}

func TestMutateMissingTicket(t *testing.T) {
	m := newMocks()
	svc := newTestTicketService(m, nil)

	_, err := svc.Pause(context.Background(), "nope")
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, "NOT_FOUND", domainErr.Code)
}
