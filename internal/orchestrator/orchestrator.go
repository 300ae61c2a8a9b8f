// Package orchestrator owns the lifecycle of every unit in the hierarchy:
// leaf-first startup, reverse-order drain, a health loop with bounded
// auto-restart, and the aggregate stats surface.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"TradeFloor/internal/agents/director"
	"TradeFloor/internal/domain/models"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/metrics"
	"TradeFloor/pkg/substrate"
)

// Unit is one long-lived member of the hierarchy. Run blocks until its
// context is cancelled; a return before that is a fault.
type Unit interface {
	ID() string
	Tier() models.Tier
	Run(ctx context.Context)
	Record() models.AgentRecord
}

// Options tunes the orchestrator's health and shutdown behavior.
type Options struct {
	HealthInterval time.Duration
	RestartRetries int
	DrainTimeout   time.Duration
}

// handle tracks one unit's goroutine.
type handle struct {
	unit     Unit
	cancel   context.CancelFunc
	done     chan struct{}
	restarts int
	degraded bool // retry budget exhausted
	stuck    bool // failed to drain on stop
}

func (h *handle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Orchestrator supervises the full unit tree. Units are held leaf-first;
// stop walks them in reverse.
type Orchestrator struct {
	units []Unit
	opts  Options
	rec   *metrics.Recorder
	// stream lengths for stats
	broker substrate.MessageBroker
	lgr    *logger.Logger

	// dir is set by Build; nil when the unit slice was assembled by hand.
	dir *director.Director

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	rootCtx   context.Context
	rootStop  context.CancelFunc
	handles   map[string]*handle
	healthWG  sync.WaitGroup
}

// New creates an orchestrator over the given units. The slice must already
// be in leaf-first order.
func New(units []Unit, opts Options, broker substrate.MessageBroker, rec *metrics.Recorder, lgr *logger.Logger) *Orchestrator {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 30 * time.Second
	}
	if opts.RestartRetries <= 0 {
		opts.RestartRetries = 3
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	return &Orchestrator{
		units:   units,
		opts:    opts,
		rec:     rec,
		broker:  broker,
		lgr:     lgr,
		handles: make(map[string]*handle),
	}
}

// Start brings every unit up, leaf tier first. Calling it while already
// running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return
	}
	o.running = true
	o.startedAt = time.Now()
	o.rootCtx, o.rootStop = context.WithCancel(context.WithoutCancel(ctx))

	for _, u := range o.units {
		o.launchLocked(u)
	}

	o.healthWG.Add(1)
	go o.healthLoop(o.rootCtx)

	o.lgr.Info("orchestrator started", logger.Int("units", len(o.units)))
}

// launchLocked starts one unit's goroutine. Caller holds mu.
func (o *Orchestrator) launchLocked(u Unit) {
	uctx, cancel := context.WithCancel(o.rootCtx)
	h := &handle{unit: u, cancel: cancel, done: make(chan struct{})}
	o.handles[u.ID()] = h
	go func() {
		defer close(h.done)
		u.Run(uctx)
	}()
}

// Stop drains the hierarchy in reverse dependency order. A unit that fails
// to drain within the timeout is logged as stuck and force-marked stopped
// rather than blocking shutdown.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	// Flip running first so the health loop stops restarting and stats
	// stay readable while units drain.
	o.running = false
	ordered := make([]*handle, 0, len(o.units))
	for i := len(o.units) - 1; i >= 0; i-- {
		if h, ok := o.handles[o.units[i].ID()]; ok {
			ordered = append(ordered, h)
		}
	}
	o.mu.Unlock()

	// One overall drain window: a stuck unit spends the remaining budget,
	// it cannot stall shutdown for the units behind it.
	deadline := time.Now().Add(o.opts.DrainTimeout)
	var stuck []*handle
	for _, h := range ordered {
		h.cancel()
		select {
		case <-h.done:
			continue
		default:
		}
		t := time.NewTimer(time.Until(deadline))
		select {
		case <-h.done:
			t.Stop()
		case <-t.C:
			stuck = append(stuck, h)
			o.lgr.Warn("unit did not drain, force-marking stopped",
				logger.String("unit", h.unit.ID()),
				logger.String("tier", h.unit.Tier().String()),
			)
		}
	}

	o.mu.Lock()
	for _, h := range stuck {
		h.stuck = true
	}
	o.rootStop()
	o.mu.Unlock()

	o.healthWG.Wait()
	o.lgr.Info("orchestrator stopped")
}

// IsRunning reports whether the orchestrator has been started and not yet
// stopped.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Director returns the tier-1 singleton when the orchestrator was built
// from configuration, nil otherwise.
func (o *Orchestrator) Director() *director.Director { return o.dir }

// UnitRunning reports one unit's liveness.
func (o *Orchestrator) UnitRunning(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[id]
	return ok && o.running && !h.stuck && h.alive()
}

// healthLoop polls unit liveness, restarting dead units within the retry
// budget. A unit past its budget is reported degraded and left down.
func (o *Orchestrator) healthLoop(ctx context.Context) {
	defer o.healthWG.Done()

	ticker := time.NewTicker(o.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.checkUnits()
			o.syncMetrics(ctx)
		}
	}
}

func (o *Orchestrator) checkUnits() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	for _, u := range o.units {
		h := o.handles[u.ID()]
		if h == nil || h.alive() || h.degraded {
			continue
		}
		if h.restarts >= o.opts.RestartRetries {
			h.degraded = true
			o.lgr.Error("unit exhausted restart budget, degraded",
				logger.String("unit", u.ID()),
				logger.Int("restarts", h.restarts),
			)
			continue
		}
		restarts := h.restarts + 1
		o.lgr.Warn("unit stopped unexpectedly, restarting",
			logger.String("unit", u.ID()),
			logger.Int("attempt", restarts),
		)
		o.launchLocked(u)
		o.handles[u.ID()].restarts = restarts
	}
}

func (o *Orchestrator) syncMetrics(ctx context.Context) {
	if o.rec == nil {
		return
	}
	stats := o.Stats(ctx)
	for tier, ts := range stats.Agents.ByTier {
		o.rec.SetAgentsRunning(tier, float64(ts.Running))
	}
	o.rec.SetStreamLength("signals:universe", float64(stats.Streams.UniversePublished))
	o.rec.SetStreamLength("signals:validated", float64(stats.Streams.ValidatedPublished))
	o.rec.SetStreamLength("signals:approved", float64(stats.Streams.ApprovedPublished))
	o.rec.SetStreamLength("signals:execution", float64(stats.Streams.FinalPublished))
	o.rec.SetHealthPercent(stats.HealthPercent)
	o.rec.SetUptime(stats.UptimeSeconds)
	for tier, c := range stats.Signals.ByTier {
		o.rec.SetSignalsProcessed(tier, float64(c.SignalsProcessed))
		o.rec.SetSignalsRejected(tier, float64(c.SignalsRejected))
	}
}
