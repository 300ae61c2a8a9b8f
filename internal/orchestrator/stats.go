package orchestrator

import (
	"context"
	"time"

	"TradeFloor/internal/agents/director"
	"TradeFloor/internal/agents/scanner"
	"TradeFloor/internal/agents/sectorhead"
	"TradeFloor/internal/agents/teamlead"
	"TradeFloor/internal/domain/models"
	"TradeFloor/pkg/logger"
)

// TierStats is one tier's running/total split.
type TierStats struct {
	Total   int `json:"total"`
	Running int `json:"running"`
}

// TierCounters aggregates unit counters across one tier.
type TierCounters struct {
	SignalsGenerated int64 `json:"signals_generated,omitempty"`
	SignalsProcessed int64 `json:"signals_processed"`
	SignalsApproved  int64 `json:"signals_approved"`
	SignalsRejected  int64 `json:"signals_rejected"`
}

// Stats is the aggregate view consumed by external monitoring tooling.
// Agents.Total always reports the full hierarchy size, running or not.
type Stats struct {
	Running bool `json:"running"`

	Agents struct {
		Total   int                  `json:"total"`
		Running int                  `json:"running"`
		ByTier  map[string]TierStats `json:"by_tier"`
	} `json:"agents"`

	Streams struct {
		UniversePublished  int64 `json:"universe_published"`
		ValidatedPublished int64 `json:"validated_published"`
		ApprovedPublished  int64 `json:"approved_published"`
		FinalPublished     int64 `json:"final_published"`
	} `json:"streams"`

	Signals struct {
		ByTier map[string]TierCounters `json:"by_tier"`
	} `json:"signals"`

	// SignalsPerMinute is end-of-pipeline throughput over the whole uptime.
	SignalsPerMinute float64 `json:"signals_per_minute"`
	HealthPercent    float64 `json:"health_percent"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Stats assembles the aggregate view. Stream lengths come straight from the
// substrate; unit counters come from each unit's record.
func (o *Orchestrator) Stats(ctx context.Context) *Stats {
	o.mu.Lock()
	running := o.running
	startedAt := o.startedAt
	type liveUnit struct {
		unit  Unit
		alive bool
	}
	units := make([]liveUnit, 0, len(o.units))
	for _, u := range o.units {
		h := o.handles[u.ID()]
		units = append(units, liveUnit{
			unit:  u,
			alive: running && h != nil && !h.stuck && h.alive(),
		})
	}
	o.mu.Unlock()

	s := &Stats{Running: running}
	s.Agents.ByTier = make(map[string]TierStats)
	s.Signals.ByTier = make(map[string]TierCounters)

	for _, lu := range units {
		tier := lu.unit.Tier().String()
		ts := s.Agents.ByTier[tier]
		ts.Total++
		if lu.alive {
			ts.Running++
			s.Agents.Running++
		}
		s.Agents.ByTier[tier] = ts
		s.Agents.Total++

		rec := lu.unit.Record()
		tc := s.Signals.ByTier[tier]
		tc.SignalsGenerated += rec.Counters.SignalsGenerated
		tc.SignalsProcessed += rec.Counters.SignalsProcessed
		tc.SignalsApproved += rec.Counters.SignalsApproved
		tc.SignalsRejected += rec.Counters.SignalsRejected
		s.Signals.ByTier[tier] = tc
	}

	if s.Agents.Total > 0 {
		s.HealthPercent = float64(s.Agents.Running) / float64(s.Agents.Total) * 100
	}

	s.Streams.UniversePublished = o.streamLength(ctx, scanner.UniverseStream)
	s.Streams.ValidatedPublished = o.streamLength(ctx, teamlead.ValidatedStream)
	s.Streams.ApprovedPublished = o.streamLength(ctx, sectorhead.ApprovedStream)
	s.Streams.FinalPublished = o.streamLength(ctx, director.ExecutionStream)

	if running {
		s.UptimeSeconds = time.Since(startedAt).Seconds()
		if s.UptimeSeconds > 0 {
			s.SignalsPerMinute = float64(s.Streams.FinalPublished) / s.UptimeSeconds * 60
		}
	}
	return s
}

func (o *Orchestrator) streamLength(ctx context.Context, stream string) int64 {
	n, err := o.broker.StreamLength(ctx, stream)
	if err != nil {
		o.lgr.Debug("stream length query failed", logger.String("stream", stream), logger.Error(err))
		return 0
	}
	return n
}

// Records returns every unit's current record in start order.
func (o *Orchestrator) Records() []models.AgentRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.AgentRecord, 0, len(o.units))
	for _, u := range o.units {
		rec := u.Record()
		h := o.handles[u.ID()]
		rec.Running = o.running && h != nil && !h.stuck && h.alive()
		out = append(out, rec)
	}
	return out
}
