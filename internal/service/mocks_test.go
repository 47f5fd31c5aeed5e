package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
)

// mockTicketRepo implements repository.TicketRepository for testing.
type mockTicketRepo struct {
	tickets map[string]*domain.Ticket

	getErr    error
	updateErr error

	updateCalls         int
	priorityUpdates     []domain.TicketPriority
	priorityUpdateIDs   []string
	openWithoutInstance []string
}

func newMockTicketRepo() *mockTicketRepo {
	return &mockTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (m *mockTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *mockTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.updateCalls++
	copied := *ticket
	m.tickets[ticket.ID] = &copied
	return nil
}

func (m *mockTicketRepo) UpdatePriority(_ context.Context, id string, priority domain.TicketPriority) error {
	ticket, ok := m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Priority = priority
	m.priorityUpdates = append(m.priorityUpdates, priority)
	m.priorityUpdateIDs = append(m.priorityUpdateIDs, id)
	return nil
}

func (m *mockTicketRepo) ListOpenWithoutInstance(_ context.Context, limit int) ([]string, error) {
	if limit < len(m.openWithoutInstance) {
		return m.openWithoutInstance[:limit], nil
	}
	return m.openWithoutInstance, nil
}

// mockInstanceRepo implements repository.SlaInstanceRepository with real
// guarded-update semantics for MarkBreached.
type mockInstanceRepo struct {
	instances map[string]*domain.SlaInstance // keyed by ticket id

	getErr    error
	upsertErr error
	markErr   error

	upsertCalls int
	nextID      int
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[string]*domain.SlaInstance)}
}

func (m *mockInstanceRepo) GetByTicketID(_ context.Context, ticketID string) (*domain.SlaInstance, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	instance, ok := m.instances[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *instance
	return &copied, nil
}

func (m *mockInstanceRepo) Upsert(_ context.Context, instance *domain.SlaInstance) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upsertCalls++
	existing, ok := m.instances[instance.TicketID]
	if ok {
		instance.ID = existing.ID
		instance.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		instance.ID = "instance-" + string(rune('a'+m.nextID-1))
		instance.CreatedAt = time.Now()
	}
	instance.UpdatedAt = time.Now()
	copied := *instance
	m.instances[instance.TicketID] = &copied
	return nil
}

func (m *mockInstanceRepo) ListDue(_ context.Context, now time.Time, limit int) ([]domain.DueInstance, error) {
	var result []domain.DueInstance
	for _, instance := range m.instances {
		if len(result) >= limit {
			break
		}
		if instance.NextDueAt != nil && !instance.NextDueAt.After(now) {
			result = append(result, domain.DueInstance{Instance: *instance})
		}
	}
	return result, nil
}

func (m *mockInstanceRepo) MarkBreached(_ context.Context, instanceID string, breachType domain.BreachType, now time.Time) (bool, error) {
	if m.markErr != nil {
		return false, m.markErr
	}
	for _, instance := range m.instances {
		if instance.ID != instanceID {
			continue
		}
		if breachType == domain.BreachTypeFirstResponse {
			if instance.FirstResponseBreachedAt != nil {
				return false, nil
			}
			stamped := now
			instance.FirstResponseBreachedAt = &stamped
			return true, nil
		}
		if instance.ResolutionBreachedAt != nil {
			return false, nil
		}
		stamped := now
		instance.ResolutionBreachedAt = &stamped
		return true, nil
	}
	return false, nil
}

// mockPolicyRepo implements repository.PolicyRepository.
type mockPolicyRepo struct {
	byID         map[string]*domain.PolicyConfig
	teamPolicies map[string]*domain.PolicyConfig
	defaultPol   *domain.PolicyConfig

	teamErr    error
	defaultErr error
}

func newMockPolicyRepo() *mockPolicyRepo {
	return &mockPolicyRepo{
		byID:         make(map[string]*domain.PolicyConfig),
		teamPolicies: make(map[string]*domain.PolicyConfig),
	}
}

func (m *mockPolicyRepo) GetByID(_ context.Context, id string) (*domain.PolicyConfig, error) {
	policy, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return policy, nil
}

func (m *mockPolicyRepo) FindEnabledForTeam(_ context.Context, teamID string) (*domain.PolicyConfig, error) {
	if m.teamErr != nil {
		return nil, m.teamErr
	}
	policy, ok := m.teamPolicies[teamID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return policy, nil
}

func (m *mockPolicyRepo) FindEnabledDefault(_ context.Context) (*domain.PolicyConfig, error) {
	if m.defaultErr != nil {
		return nil, m.defaultErr
	}
	if m.defaultPol == nil {
		return nil, pgx.ErrNoRows
	}
	return m.defaultPol, nil
}

// mockTeamRepo implements repository.TeamRepository.
type mockTeamRepo struct {
	teams map[string]*domain.Team
}

func newMockTeamRepo() *mockTeamRepo {
	return &mockTeamRepo{teams: make(map[string]*domain.Team)}
}

func (m *mockTeamRepo) GetByID(_ context.Context, id string) (*domain.Team, error) {
	team, ok := m.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return team, nil
}

// mockUserRepo implements repository.UserRepository.
type mockUserRepo struct {
	leads    map[string][]domain.User
	leadsErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{leads: make(map[string][]domain.User)}
}

func (m *mockUserRepo) ListTeamLeads(_ context.Context, teamID string) ([]domain.User, error) {
	if m.leadsErr != nil {
		return nil, m.leadsErr
	}
	return m.leads[teamID], nil
}

// mocks bundles all repository mocks behind one repository.Store.
type mocks struct {
	tickets   *mockTicketRepo
	instances *mockInstanceRepo
	policies  *mockPolicyRepo
	teams     *mockTeamRepo
	users     *mockUserRepo
	store     *repository.Store
}

func newMocks() *mocks {
	m := &mocks{
		tickets:   newMockTicketRepo(),
		instances: newMockInstanceRepo(),
		policies:  newMockPolicyRepo(),
		teams:     newMockTeamRepo(),
		users:     newMockUserRepo(),
	}
	m.store = &repository.Store{
		Tickets:   m.tickets,
		Instances: m.instances,
		Policies:  m.policies,
		Teams:     m.teams,
		Users:     m.users,
	}
	return m
}

var (
	_ repository.TicketRepository      = (*mockTicketRepo)(nil)
	_ repository.SlaInstanceRepository = (*mockInstanceRepo)(nil)
	_ repository.PolicyRepository      = (*mockPolicyRepo)(nil)
	_ repository.TeamRepository        = (*mockTeamRepo)(nil)
	_ repository.UserRepository        = (*mockUserRepo)(nil)
)

// capturingDispatcher records published events.
type capturingDispatcher struct {
	published []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *capturingDispatcher) byType(eventType events.EventType) []events.Event {
	var result []events.Event
	for _, event := range d.published {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}
