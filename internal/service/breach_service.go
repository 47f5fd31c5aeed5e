package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/pkg/util"
)

// BreachService decides which deadline fired for one scanned instance and
// records the breach exactly once.
type BreachService struct {
	cfg        config.SlaConfig
	sync       *SlaService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewBreachService constructs the service.
func NewBreachService(cfg config.SlaConfig, sync *SlaService, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *BreachService {
	return &BreachService{
		cfg:        cfg,
		sync:       sync,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleDue processes one scanned instance/ticket pair inside the scan
// transaction. It returns a staged notification intent for post-commit
// dispatch, or nil when nothing needs sending. Lost races (another writer
// recorded the breach first) and state that moved on since the scan key was
// read are normal outcomes, not errors.
func (b *BreachService) HandleDue(ctx context.Context, store *repository.Store, item domain.DueInstance, now time.Time) (*NotificationIntent, error) {
	instance := item.Instance
	ticket := item.Ticket

	// a paused ticket can appear in scan results from a race with a pause
	// action; resynchronize and stop
	if instance.PausedAt != nil || ticket.SlaPausedAt != nil {
		return nil, b.resync(ctx, store, ticket.ID)
	}

	breachType, dueAt, ok := pickBreach(instance, ticket, now)
	if !ok {
		// state moved on since the scan key was read
		return nil, b.resync(ctx, store, ticket.ID)
	}

	recorded, err := store.Instances.MarkBreached(ctx, instance.ID, breachType, now)
	if err != nil {
		return nil, err
	}
	if !recorded {
		b.logger.Debug("breach already recorded by concurrent writer",
			zap.String("ticket_id", ticket.ID),
			zap.String("breach_type", string(breachType)))
		return nil, nil
	}
	b.metrics.RecordBreach(string(breachType))

	b.publishEvent(ctx, events.Event{
		Type:     events.EventSlaBreached,
		TicketID: ticket.ID,
		Payload: events.SlaBreachedPayload{
			BreachType:     breachType,
			DueAt:          dueAt,
			PolicyConfigID: instance.PolicyConfigID,
		},
	})

	escalatedTo, err := b.maybeEscalate(ctx, store, &ticket, instance, breachType)
	if err != nil {
		return nil, err
	}

	// recompute next_due_at and the cached priority with the breach marker
	// in place
	if _, err := b.sync.SyncFromTicket(ctx, ticket.ID, SyncOptions{}, store.Q); err != nil {
		return nil, err
	}

	recipients, err := b.gatherRecipients(ctx, store, ticket.AssignedTeamID)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		// valid terminal outcome: breach recorded, nobody to notify
		b.logger.Debug("no breach notification recipients", zap.String("ticket_id", ticket.ID))
		return nil, nil
	}

	return b.buildIntent(ticket, breachType, dueAt, escalatedTo, recipients), nil
}

// pickBreach evaluates the breach conditions in life-cycle order.
func pickBreach(instance domain.SlaInstance, ticket domain.Ticket, now time.Time) (domain.BreachType, time.Time, bool) {
	if ticket.FirstResponseAt == nil && instance.FirstResponseBreachedAt == nil &&
		instance.FirstResponseDueAt != nil && !instance.FirstResponseDueAt.After(now) {
		return domain.BreachTypeFirstResponse, *instance.FirstResponseDueAt, true
	}
	if ticket.CompletedAt == nil && instance.ResolutionBreachedAt == nil &&
		instance.ResolutionDueAt != nil && !instance.ResolutionDueAt.After(now) {
		return domain.BreachTypeResolution, *instance.ResolutionDueAt, true
	}
	return "", time.Time{}, false
}

func (b *BreachService) resync(ctx context.Context, store *repository.Store, ticketID string) error {
	_, err := b.sync.SyncFromTicket(ctx, ticketID, SyncOptions{}, store.Q)
	return err
}

// maybeEscalate bumps the ticket priority one step on the fixed ladder.
// Returns the new priority, or nil when no escalation happened.
func (b *BreachService) maybeEscalate(ctx context.Context, store *repository.Store, ticket *domain.Ticket, instance domain.SlaInstance, breachType domain.BreachType) (*domain.TicketPriority, error) {
	if !b.cfg.EscalationEnabled {
		return nil, nil
	}
	if instance.PolicyConfigID != nil {
		policy, err := store.Policies.GetByID(ctx, *instance.PolicyConfigID)
		if err != nil && !util.IsNotFound(err) {
			return nil, err
		}
		if policy != nil && !policy.EscalationEnabled {
			return nil, nil
		}
	}
	next, ok := ticket.Priority.Escalate()
	if !ok {
		return nil, nil
	}

	if err := store.Tickets.UpdatePriority(ctx, ticket.ID, next); err != nil {
		if util.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	old := ticket.Priority
	ticket.Priority = next

	b.publishEvent(ctx, events.Event{
		Type:     events.EventSlaPriorityBumped,
		TicketID: ticket.ID,
		Payload: events.SlaPriorityBumpedPayload{
			OldPriority: old,
			NewPriority: next,
			BreachType:  breachType,
		},
	})
	return &next, nil
}

// gatherRecipients collects leads of the assigned team plus the configured
// on-call addresses, deduplicated in order.
func (b *BreachService) gatherRecipients(ctx context.Context, store *repository.Store, teamID *string) ([]string, error) {
	var emails []string
	if teamID != nil {
		leads, err := store.Users.ListTeamLeads(ctx, *teamID)
		if err != nil {
			return nil, err
		}
		for _, lead := range leads {
			emails = append(emails, lead.Email)
		}
	}
	emails = append(emails, b.cfg.OnCallEmails...)

	seen := make(map[string]struct{}, len(emails))
	result := make([]string, 0, len(emails))
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		result = append(result, email)
	}
	return result, nil
}

func (b *BreachService) buildIntent(ticket domain.Ticket, breachType domain.BreachType, dueAt time.Time, escalatedTo *domain.TicketPriority, recipients []string) *NotificationIntent {
	label := "first response"
	if breachType == domain.BreachTypeResolution {
		label = "resolution"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "The %s deadline for ticket %s (%s) has been breached.\n", label, ticket.ExternalKey, ticket.Title)
	fmt.Fprintf(&body, "Priority: %s\n", ticket.Priority)
	fmt.Fprintf(&body, "Due at: %s\n", dueAt.UTC().Format(time.RFC3339))
	if escalatedTo != nil {
		fmt.Fprintf(&body, "Priority was automatically escalated to %s.\n", *escalatedTo)
	}
	fmt.Fprintf(&body, "View: %s/tickets/%s\n", strings.TrimRight(b.cfg.DeepLinkBaseURL, "/"), ticket.ID)

	return &NotificationIntent{
		EventType:  events.EventSlaBreached,
		TicketID:   ticket.ID,
		Subject:    fmt.Sprintf("SLA breach: %s overdue on %s", label, ticket.ExternalKey),
		Body:       body.String(),
		Recipients: recipients,
		Payload: events.SlaBreachedPayload{
			BreachType: breachType,
			DueAt:      dueAt,
		},
	}
}

func (b *BreachService) publishEvent(ctx context.Context, event events.Event) {
	if b.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Actor = events.Actor{Type: domain.SubjectTypeSystem}
	_ = b.dispatcher.Publish(ctx, event)
}
