package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/homecal/internal/model"
)

const (
	deliverSchedule = "* * * * *"
	cleanupSchedule = "*/15 * * * *"
	defaultGrace    = 5 * time.Minute
)

// DueStore is the storage the dispatcher drains.
type DueStore interface {
	ListDue(now time.Time, grace time.Duration) ([]model.NotificationRecord, error)
	Delete(id string) error
	DeleteExpired(now time.Time) (int64, error)
}

// Dispatcher fires stored notifications when they come due. A record is
// deleted once delivered; failed deliveries are retried each minute until
// the grace window passes and cleanup removes them.
type Dispatcher struct {
	mu     sync.RWMutex
	store  DueStore
	sender Sender
	loc    *time.Location
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger

	cron     *cron.Cron
	cancel   context.CancelFunc
	onChange []func(model.NotificationRecord)
}

func NewDispatcher(store DueStore, sender Sender, loc *time.Location, logger *slog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		store:  store,
		sender: sender,
		loc:    loc,
		grace:  defaultGrace,
		now:    time.Now,
		logger: logger,
	}
}

// OnDelivered registers fn to run after a record is delivered and removed.
func (d *Dispatcher) OnDelivered(fn func(model.NotificationRecord)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Start schedules delivery every minute and cleanup every 15 minutes.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, d.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(d.loc))
	if _, err := c.AddFunc(deliverSchedule, func() { d.Deliver(ctx) }); err != nil {
		return fmt.Errorf("schedule delivery: %w", err)
	}
	if _, err := c.AddFunc(cleanupSchedule, func() { d.Cleanup() }); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	c.Start()
	d.cron = c
	return nil
}

// Stop cancels in-flight deliveries and waits for running jobs.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	c := d.cron
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
}

// Deliver sends every due record and returns how many were delivered.
func (d *Dispatcher) Deliver(ctx context.Context) int {
	now := d.now()
	due, err := d.store.ListDue(now, d.grace)
	if err != nil {
		d.logger.Error("list due notifications", "error", err)
		return 0
	}

	delivered := 0
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		err := d.sender.Send(ctx, r)
		var partial *PartialError
		switch {
		case err == nil:
		case errors.As(err, &partial):
			d.logger.Warn("notification partially delivered", "id", r.ID, "event", r.EventSummary, "error", partial.Err)
		case errors.Is(err, ErrNotApplicable):
			d.logger.Warn("no delivery route for notification", "id", r.ID, "event", r.EventSummary, "type", r.Type, "target", r.TargetDevice)
			if err := d.store.Delete(r.ID); err != nil {
				d.logger.Error("delete undeliverable notification", "id", r.ID, "error", err)
			}
			continue
		default:
			d.logger.Warn("notification delivery failed", "id", r.ID, "event", r.EventSummary, "type", r.Type, "error", err)
			continue
		}
		if err := d.store.Delete(r.ID); err != nil {
			d.logger.Error("delete delivered notification", "id", r.ID, "error", err)
		}
		delivered++
		d.logger.Info("notification delivered", "id", r.ID, "event", r.EventSummary, "type", r.Type, "target", r.TargetDevice)

		d.mu.RLock()
		hooks := append([]func(model.NotificationRecord){}, d.onChange...)
		d.mu.RUnlock()
		for _, fn := range hooks {
			fn(r)
		}
	}
	return delivered
}

// Cleanup removes expired records.
func (d *Dispatcher) Cleanup() int64 {
	n, err := d.store.DeleteExpired(d.now())
	if err != nil {
		d.logger.Error("cleanup notifications", "error", err)
		return 0
	}
	if n > 0 {
		d.logger.Info("expired notifications removed", "count", n)
	}
	return n
}
