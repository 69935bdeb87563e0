package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukerupert/homecal/internal/session"
)

// RequestFunc builds the refresh request from the current settings.
type RequestFunc func(ctx context.Context) (Request, error)

// WithNavigation points req at the view the widget navigated to, so a
// background refresh does not move the snapshot away from it.
func WithNavigation(req Request, nav session.Navigation) Request {
	if nav.View != "" {
		req.View = nav.View
	}
	if !nav.Ref.IsZero() {
		req.Ref = nav.Ref
	}
	return req
}

// Recomputer forces the notification backend to rebuild.
type Recomputer interface {
	ForceRecompute(ctx context.Context) error
}

// Poller refreshes the engine on an interval and on demand.
type Poller struct {
	mu         sync.RWMutex
	engine     *Engine
	request    RequestFunc
	recomputer Recomputer
	interval   time.Duration
	forceEvery int
	trigger    chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewPoller creates a poller. When recomputer is set, every forceEvery-th
// tick asks the backend to recompute before refreshing.
func NewPoller(engine *Engine, request RequestFunc, recomputer Recomputer, interval time.Duration, forceEvery int) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		engine:     engine,
		request:    request,
		recomputer: recomputer,
		interval:   interval,
		forceEvery: forceEvery,
		trigger:    make(chan struct{}, 1),
	}
}

// Start runs an initial refresh and then the poll loop.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.refresh(ctx)
		ticks := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticks++
				if p.recomputer != nil && p.forceEvery > 0 && ticks%p.forceEvery == 0 {
					if err := p.recomputer.ForceRecompute(ctx); err != nil {
						p.engine.logger.Warn("periodic recompute failed", "error", err)
					}
				}
				p.refresh(ctx)
			case <-p.trigger:
				p.refresh(ctx)
			}
		}
	}()
}

// Stop gracefully stops the poller.
func (p *Poller) Stop() {
	p.mu.RLock()
	cancel := p.cancel
	done := p.done
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Trigger schedules a refresh without blocking. Triggers that arrive while
// one is pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) refresh(ctx context.Context) {
	req, err := p.request(ctx)
	if err != nil {
		p.engine.logger.Error("build refresh request", "error", err)
		return
	}
	req = WithNavigation(req, p.engine.state.Navigation())
	if _, err := p.engine.Refresh(ctx, req); err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			p.engine.logger.Debug("refresh skipped, another is running")
			return
		}
		if !errors.Is(err, context.Canceled) {
			p.engine.logger.Error("refresh failed", "error", err)
		}
	}
}
