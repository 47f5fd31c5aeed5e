package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/persistence"
)

// NotificationIntent is a side-effecting notification staged during a scan
// transaction and dispatched only after that transaction commits.
type NotificationIntent struct {
	EventType  events.EventType `json:"event_type"`
	TicketID   string           `json:"ticket_id"`
	Subject    string           `json:"subject"`
	Body       string           `json:"body"`
	Recipients []string         `json:"recipients"`
	Payload    any              `json:"payload,omitempty"`
}

// NotificationDispatcher delivers staged intents. Implementations are
// fire-and-forget: failures are their own concern and never propagate back
// into breach processing.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, intent NotificationIntent)
}

// NotificationService is the default dispatcher: it logs the delivery,
// emits the email stub per recipient, and publishes the intent on a Redis
// channel for downstream delivery workers.
type NotificationService struct {
	cfg    config.NotificationConfig
	redis  *persistence.Redis
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(cfg config.NotificationConfig, redis *persistence.Redis, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		cfg:    cfg,
		redis:  redis,
		logger: logger,
	}
}

// Dispatch delivers one intent. Errors are logged and swallowed: a
// recorded-but-unnotified breach is preferred over a rolled-back breach
// record.
func (n *NotificationService) Dispatch(ctx context.Context, intent NotificationIntent) {
	n.logger.Info("dispatching notification",
		zap.String("event_type", string(intent.EventType)),
		zap.String("ticket_id", intent.TicketID),
		zap.String("subject", intent.Subject),
		zap.Int("recipients", len(intent.Recipients)))

	n.sendEmailStub(intent)
	n.publishToChannel(ctx, intent)
}

func (n *NotificationService) sendEmailStub(intent NotificationIntent) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	for _, recipient := range intent.Recipients {
		n.logger.Debug("sendEmailStub",
			zap.String("from", n.cfg.EmailFrom),
			zap.String("to", recipient),
			zap.String("ticket_id", intent.TicketID),
			zap.String("subject", intent.Subject))
	}
}

func (n *NotificationService) publishToChannel(ctx context.Context, intent NotificationIntent) {
	if n.redis == nil || strings.TrimSpace(n.cfg.RedisChannel) == "" {
		return
	}
	payload, err := json.Marshal(intent)
	if err != nil {
		n.logger.Error("marshal notification intent", zap.Error(err))
		return
	}
	if err := n.redis.Publish(ctx, n.cfg.RedisChannel, payload); err != nil {
		n.logger.Error("publish notification intent",
			zap.String("channel", n.cfg.RedisChannel),
			zap.String("ticket_id", intent.TicketID),
			zap.Error(err))
	}
}
