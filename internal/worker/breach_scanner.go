package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
	"github.com/spec-kit/sla-service/pkg/util"
)

// Advisory lock keys for the two scanner passes. These must stay distinct
// and stable across deployments: replicas on different versions coordinate
// through them during a rolling deploy, and changing either silently breaks
// the mutual-exclusion guarantee.
const (
	backfillLockKey int64 = 744101
	scanLockKey     int64 = 744102
)

// txRunner runs a function inside a transaction guarded by a non-blocking,
// transaction-scoped advisory lock. Implemented by persistence.Postgres.
type txRunner interface {
	InTxWithLock(ctx context.Context, key int64, fn func(ctx context.Context, q repository.Querier) error) (bool, error)
}

// deadlineSyncer recomputes one ticket's SLA instance. Implemented by
// service.SlaService.
type deadlineSyncer interface {
	SyncFromTicket(ctx context.Context, ticketID string, opts service.SyncOptions, q repository.Querier) (*domain.SlaInstance, error)
}

// breachHandler processes one due instance inside the scan transaction.
// Implemented by service.BreachService.
type breachHandler interface {
	HandleDue(ctx context.Context, store *repository.Store, item domain.DueInstance, now time.Time) (*service.NotificationIntent, error)
}

// Scanner polls sla_instances for passed deadlines on a fixed interval.
// Every replica runs its own Scanner; the advisory locks ensure at most one
// replica backfills and at most one replica scans at a time. Notifications
// staged during a scan are dispatched only after the scan transaction
// commits, in processing order.
type Scanner struct {
	cfg      config.SlaConfig
	db       txRunner
	newStore func(repository.Querier) *repository.Store
	sync     deadlineSyncer
	breach   breachHandler
	notifier service.NotificationDispatcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool

	stop chan struct{}
	done chan struct{}
}

// NewScanner constructs a scanner bound to one database handle.
func NewScanner(cfg config.SlaConfig, db txRunner, syncSvc *service.SlaService, breach *service.BreachService, notifier service.NotificationDispatcher, metrics *observability.Metrics, logger *zap.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg,
		db:       db,
		newStore: repository.NewStore,
		sync:     syncSvc,
		breach:   breach,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "breach_scanner")),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the timer loop. A disabled scanner closes done immediately
// so Stop stays safe to call.
func (s *Scanner) Start(ctx context.Context) {
	if !s.cfg.ScannerEnabled {
		s.logger.Info("breach scanner disabled")
		close(s.done)
		return
	}
	s.logger.Info("breach scanner starting",
		zap.Duration("interval", s.cfg.TickInterval()),
		zap.Int("scan_batch_size", s.cfg.ScanBatchSize),
		zap.Int("backfill_batch_size", s.cfg.BackfillBatchSize))
	go s.run(ctx)
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop clears the timer and waits for an in-flight cycle to finish. The
// cycle's transaction is never aborted; it completes or fails on its own and
// the advisory lock releases with it.
func (s *Scanner) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

// Tick runs one backfill pass and one scan pass, unless the previous cycle
// on this process is still running (slow database round-trips can outlast
// the tick interval).
func (s *Scanner) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("previous cycle still running, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.runBackfill(ctx)
	s.runScan(ctx)
}

// runBackfill creates missing instances for open tickets, in its own short
// transaction under the backfill lock.
func (s *Scanner) runBackfill(ctx context.Context) {
	acquired, err := s.db.InTxWithLock(ctx, backfillLockKey, func(ctx context.Context, q repository.Querier) error {
		store := s.newStore(q)
		ids, err := store.Tickets.ListOpenWithoutInstance(ctx, s.cfg.BackfillBatchSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := s.sync.SyncFromTicket(ctx, id, service.SyncOptions{}, q); err != nil {
				if util.IsTxFatal(err) {
					return err
				}
				s.logger.Error("backfill failed for ticket", zap.String("ticket_id", id), zap.Error(err))
			}
		}
		if len(ids) > 0 {
			s.logger.Info("backfilled sla instances", zap.Int("count", len(ids)))
		}
		return nil
	})
	switch {
	case err != nil:
		s.logger.Error("backfill pass failed", zap.Error(err))
	case !acquired:
		s.logger.Debug("backfill lock held by another replica")
	}
}

// runScan processes due instances under the scan lock, staging notification
// intents in memory. Intents are dispatched only after the transaction has
// committed; a failed or skipped cycle dispatches nothing and the next tick
// retries cheaply, every operation being idempotent or guarded.
func (s *Scanner) runScan(ctx context.Context) {
	var intents []service.NotificationIntent

	acquired, err := s.db.InTxWithLock(ctx, scanLockKey, func(ctx context.Context, q repository.Querier) error {
		store := s.newStore(q)
		now := s.now()
		due, err := store.Instances.ListDue(ctx, now, s.cfg.ScanBatchSize)
		if err != nil {
			return err
		}
		for _, item := range due {
			intent, err := s.breach.HandleDue(ctx, store, item, now)
			if err != nil {
				if util.IsTxFatal(err) {
					return err
				}
				s.logger.Error("breach handling failed",
					zap.String("ticket_id", item.Ticket.ID),
					zap.Error(err))
				continue
			}
			if intent != nil {
				intents = append(intents, *intent)
			}
		}
		return nil
	})
	switch {
	case err != nil:
		s.metrics.RecordScanCycle("failed")
		s.logger.Error("scan pass failed", zap.Error(err))
		return
	case !acquired:
		s.metrics.RecordScanCycle("lock_missed")
		s.logger.Debug("scan lock held by another replica")
		return
	}
	s.metrics.RecordScanCycle("completed")

	for _, intent := range intents {
		s.notifier.Dispatch(ctx, intent)
	}
}
