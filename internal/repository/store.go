package repository

// Store bundles the repositories bound to a single Querier. Services receive
// a Store so a whole unit of work shares one transaction handle.
type Store struct {
	Q         Querier
	Tickets   TicketRepository
	Instances SlaInstanceRepository
	Policies  PolicyRepository
	Teams     TeamRepository
	Users     UserRepository
}

// NewStore binds all repositories to the given Querier (pool or transaction).
func NewStore(q Querier) *Store {
	return &Store{
		Q:         q,
		Tickets:   NewTicketRepository(q),
		Instances: NewSlaInstanceRepository(q),
		Policies:  NewPolicyRepository(q),
		Teams:     NewTeamRepository(q),
		Users:     NewUserRepository(q),
	}
}
