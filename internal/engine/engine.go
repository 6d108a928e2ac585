// Package engine assembles the SLA subsystem: deadline application at ticket
// creation, the periodic monitor scan, escalation dispatch and automation
// triggers, behind one facade the ticket platform calls into.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/servicedesk-io/slacore/internal/cache"
	"github.com/servicedesk-io/slacore/internal/config"
	"github.com/servicedesk-io/slacore/internal/database"
	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
	"github.com/servicedesk-io/slacore/internal/services/automation"
	"github.com/servicedesk-io/slacore/internal/services/calendar"
	"github.com/servicedesk-io/slacore/internal/services/dispatch"
	"github.com/servicedesk-io/slacore/internal/services/monitor"
	"github.com/servicedesk-io/slacore/internal/services/scheduler"
	"github.com/servicedesk-io/slacore/internal/services/sla"
)

// Engine owns the wired service graph. Construct it with New and run the
// background jobs with Start; the remaining methods are the synchronous
// surface the ticket platform calls.
type Engine struct {
	cfg       *config.Config
	db        *sqlx.DB
	cache     *cache.RedisCache
	gateway   repository.TicketGateway
	triggers  repository.TriggerStore
	resolver  *calendar.Resolver
	applier   *sla.Applier
	monitor   *monitor.Monitor
	evaluator *automation.Evaluator
	scheduler *scheduler.Service
	logger    *log.Logger
}

// New connects to the configured stores and wires all services.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	logger := log.New(os.Stderr, cfg.Logging.Prefix+" ", log.LstdFlags|log.Lmsgprefix)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCache(cache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			PoolSize:  cfg.Redis.PoolSize,
		})
		if err != nil {
			// The structured event rows still dedup correctly; only the
			// cross-process fast path is lost.
			logger.Printf("engine: dedup cache disabled: %v", err)
			redisCache = nil
		}
	}

	location, err := time.LoadLocation(cfg.Engine.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("engine: default timezone: %w", err)
	}

	gateway := repository.NewSQLTicketGateway(db, location)
	triggers := repository.NewSQLTriggerStore(db)
	return build(cfg, db, redisCache, gateway, triggers, logger)
}

// NewWithStores wires an engine over explicit store implementations. Tests
// and embedded setups use it to bypass SQL and Redis.
func NewWithStores(cfg *config.Config, gateway repository.TicketGateway, triggers repository.TriggerStore, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	return build(cfg, nil, nil, gateway, triggers, logger)
}

func build(cfg *config.Config, db *sqlx.DB, redisCache *cache.RedisCache, gateway repository.TicketGateway, triggers repository.TriggerStore, logger *log.Logger) (*Engine, error) {
	resolver := calendar.NewResolver(gateway, cfg.Engine.DefaultCalendarID, logger)
	if cfg.Engine.PublicHolidaysYAML != "" {
		data, err := os.ReadFile(cfg.Engine.PublicHolidaysYAML)
		if err != nil {
			return nil, fmt.Errorf("engine: read public holidays: %w", err)
		}
		if err := resolver.LoadPublicHolidays(data); err != nil {
			return nil, err
		}
	}

	applier := sla.NewApplier(gateway, resolver, sla.NewPolicyLookup(gateway), logger)
	evaluator := automation.NewEvaluator(triggers, gateway, automation.WithLogger(logger))

	e := &Engine{
		cfg:       cfg,
		db:        db,
		cache:     redisCache,
		gateway:   gateway,
		triggers:  triggers,
		resolver:  resolver,
		applier:   applier,
		evaluator: evaluator,
		logger:    logger,
	}

	dispatcher := dispatch.New(gateway, cfg.Engine.DedupWindow,
		dispatch.WithLogger(logger),
		dispatch.WithCache(redisCache),
		dispatch.WithEscalationPriority(cfg.Engine.EscalationPriority),
		dispatch.WithFollowUp(e.fireEventTriggers),
	)

	monitorOpts := []monitor.Option{monitor.WithLogger(logger)}
	if cfg.Engine.BusinessHoursOnly {
		monitorOpts = append(monitorOpts, monitor.WithBusinessHoursOnly(resolver))
	}
	e.monitor = monitor.New(gateway, dispatcher, cfg.Engine.WarningWindow, monitorOpts...)

	e.scheduler = scheduler.NewService(
		scheduler.WithLogger(logger),
		scheduler.WithJobs(scheduledJobs(cfg)),
	)
	e.scheduler.RegisterHandler(scheduler.HandlerMonitorScan, func(ctx context.Context, _ *models.ScheduledJob) error {
		_, err := e.monitor.ScanOnce(ctx)
		return err
	})
	e.scheduler.RegisterHandler(scheduler.HandlerTimeScan, func(ctx context.Context, _ *models.ScheduledJob) error {
		_, err := e.evaluator.RunTimeScan(ctx)
		return err
	})

	return e, nil
}

func scheduledJobs(cfg *config.Config) []*models.ScheduledJob {
	jobs := scheduler.DefaultJobs()
	for _, job := range jobs {
		switch job.Slug {
		case scheduler.JobMonitorScan:
			job.Schedule = fmt.Sprintf("@every %s", cfg.Engine.ScanInterval)
		case scheduler.JobTimeScan:
			job.Schedule = fmt.Sprintf("@every %s", cfg.Engine.TimeScanInterval)
		}
	}
	return jobs
}

// Start runs the scheduler until the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.monitor.SetScheduled(true)
	defer e.monitor.SetScheduled(false)
	return e.scheduler.Run(ctx)
}

// Close releases the database and cache connections.
func (e *Engine) Close() error {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.logger.Printf("engine: close cache: %v", err)
		}
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// ApplyDeadlines computes and persists SLA deadlines for a ticket. A nil
// result with nil error means the ticket has no contractual SLA.
func (e *Engine) ApplyDeadlines(ctx context.Context, ticketID int64) (*models.DeadlineResult, error) {
	return e.applier.ApplyDeadlines(ctx, ticketID)
}

// RunMonitorScan performs one monitor pass outside the schedule.
func (e *Engine) RunMonitorScan(ctx context.Context) (monitor.ScanStats, error) {
	return e.monitor.ScanOnce(ctx)
}

// RunTimeScan performs one time-based automation pass outside the schedule.
func (e *Engine) RunTimeScan(ctx context.Context) (automation.TimeScanStats, error) {
	return e.evaluator.RunTimeScan(ctx)
}

// MonitorHealth reports the monitor scheduling state for health endpoints.
func (e *Engine) MonitorHealth() monitor.Health {
	return e.monitor.Health()
}

// Jobs returns the scheduler's job snapshot with last-run bookkeeping.
func (e *Engine) Jobs() []*models.ScheduledJob {
	return e.scheduler.Jobs()
}

// OnTicketCreated is the creation hook: it applies SLA deadlines and fires
// ticket_created triggers. Both are best-effort follow-ups; creation itself
// has already committed.
func (e *Engine) OnTicketCreated(ctx context.Context, ticketID int64) error {
	if _, err := e.applier.ApplyDeadlines(ctx, ticketID); err != nil {
		return err
	}
	return e.fireTriggers(ctx, models.TriggerTicketCreated, ticketID, nil)
}

// OnStatusChanged fires status_changed triggers with the previous status
// available to conditions as previous_status.
func (e *Engine) OnStatusChanged(ctx context.Context, ticketID int64, previousStatus string) error {
	change := &automation.ChangeContext{Previous: map[string]any{"status": previousStatus}}
	return e.fireTriggers(ctx, models.TriggerStatusChanged, ticketID, change)
}

// OnPriorityChanged recomputes the deadlines against the new priority's
// policy and fires priority_changed triggers.
func (e *Engine) OnPriorityChanged(ctx context.Context, ticketID int64, previousPriority string) error {
	if _, err := e.applier.ApplyDeadlines(ctx, ticketID); err != nil {
		return err
	}
	change := &automation.ChangeContext{Previous: map[string]any{"priority": previousPriority}}
	return e.fireTriggers(ctx, models.TriggerPriorityChanged, ticketID, change)
}

// OnCommentAdded fires comment_added triggers.
func (e *Engine) OnCommentAdded(ctx context.Context, ticketID int64) error {
	return e.fireTriggers(ctx, models.TriggerCommentAdded, ticketID, nil)
}

// EvaluateTriggers runs all active triggers of the given type against one
// ticket and returns how many fired.
func (e *Engine) EvaluateTriggers(ctx context.Context, triggerType models.TriggerType, ticketID int64, change *automation.ChangeContext) (int, error) {
	ticket, err := e.gateway.GetTicket(ctx, ticketID)
	if err != nil {
		return 0, fmt.Errorf("engine: load ticket %d for %s triggers: %w", ticketID, triggerType, err)
	}
	return e.evaluator.Evaluate(ctx, triggerType, ticket, change)
}

func (e *Engine) fireTriggers(ctx context.Context, triggerType models.TriggerType, ticketID int64, change *automation.ChangeContext) error {
	_, err := e.EvaluateTriggers(ctx, triggerType, ticketID, change)
	return err
}

// fireEventTriggers runs sla_warning/sla_breach triggers for an event that
// survived dedup. Failures are logged; the dispatch itself already succeeded.
func (e *Engine) fireEventTriggers(ctx context.Context, ev models.ClassificationEvent) {
	triggerType := models.TriggerSLAWarning
	if ev.Kind == models.EventBreach {
		triggerType = models.TriggerSLABreach
	}
	if err := e.fireTriggers(ctx, triggerType, ev.TicketID, nil); err != nil {
		e.logger.Printf("engine: %s triggers for ticket %d: %v", triggerType, ev.TicketID, err)
	}
}

// WaitHealthy pings the database until it responds or the timeout elapses.
func (e *Engine) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	if e.db == nil {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := e.db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("engine: database not reachable: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
