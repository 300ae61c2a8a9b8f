package sectorhead

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"TradeFloor/internal/agents/teamlead"
	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/internal/risk"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

// ApprovedStream carries signals that cleared sector risk gates.
const ApprovedStream = "signals:approved"

// ConsumerGroup is the stage-scoped group over the validated stream.
const ConsumerGroup = "sector_heads"

// Rejection reasons tracked in the histogram.
const (
	ReasonExposureLimit       = "exposure_limit"
	ReasonSectorConcentration = "sector_concentration"
	ReasonUnknownSector       = "unknown_sector"
)

// maxSectorPositions is the hard concentration ceiling: once a sector holds
// this many concurrent positions, every new entrant is rejected regardless
// of exposure headroom.
const maxSectorPositions = 3

// Config holds one sector head's identity and sizing assumption.
type Config struct {
	ID        string
	TeamLeads []string // supervised team lead ids

	// ProposedFraction is the position share assumed when checking exposure
	// headroom; the director sizes the final position at or below it.
	ProposedFraction float64

	ConsumeBatch int64
	ConsumeBlock time.Duration
}

// SectorHead is a tier-2 unit. It holds the fixed sector definitions,
// applies exposure and concentration gates against the shared portfolio
// state, scores sector risk, and republishes approvals.
type SectorHead struct {
	cfg       Config
	sectors   models.SectorIndex
	broker    substrate.MessageBroker
	portfolio *risk.PortfolioState
	provider  market.Provider
	lgr       *logger.Logger

	signalsProcessed atomic.Int64
	signalsRejected  atomic.Int64

	histMu     sync.Mutex
	rejections map[string]int64
}

// New creates a sector head over its team-lead slice.
func New(cfg Config, sectors models.SectorIndex, broker substrate.MessageBroker, portfolio *risk.PortfolioState, provider market.Provider, lgr *logger.Logger) *SectorHead {
	if cfg.ProposedFraction <= 0 {
		cfg.ProposedFraction = 0.05
	}
	return &SectorHead{
		cfg:        cfg,
		sectors:    sectors,
		broker:     broker,
		portfolio:  portfolio,
		provider:   provider,
		lgr:        lgr.With(logger.String("agent", cfg.ID)),
		rejections: make(map[string]int64),
	}
}

func (h *SectorHead) ID() string        { return h.cfg.ID }
func (h *SectorHead) Tier() models.Tier { return models.TierSectorHead }

// Record snapshots the head's state for orchestrator stats.
func (h *SectorHead) Record() models.AgentRecord {
	processed := h.signalsProcessed.Load()
	rejected := h.signalsRejected.Load()
	return models.AgentRecord{
		ID:    h.cfg.ID,
		Tier:  models.TierSectorHead,
		Scope: h.cfg.TeamLeads,
		Counters: models.AgentCounters{
			SignalsProcessed: processed,
			SignalsApproved:  processed - rejected,
			SignalsRejected:  rejected,
		},
	}
}

// RejectionHistogram returns a copy of the per-reason rejection counts.
func (h *SectorHead) RejectionHistogram() map[string]int64 {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	out := make(map[string]int64, len(h.rejections))
	for k, v := range h.rejections {
		out[k] = v
	}
	return out
}

// Run consumes the validated stream until ctx is cancelled.
func (h *SectorHead) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := h.broker.Consume(ctx, teamlead.ValidatedStream, ConsumerGroup, h.cfg.ID, h.cfg.ConsumeBatch, h.cfg.ConsumeBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.lgr.Warn("consume failed", logger.Error(err))
			continue
		}
		for _, msg := range msgs {
			validated, err := models.DecodeValidatedSignal(msg.Values)
			if err != nil {
				h.lgr.Warn("malformed signal dropped", logger.String("id", msg.ID), logger.Error(err))
				continue
			}
			if approved := h.Approve(ctx, validated); approved != nil {
				h.publish(ctx, approved)
			}
		}
	}
}

// Approve applies the sector gates and returns the enriched signal, or nil
// with the rejection reason recorded.
func (h *SectorHead) Approve(ctx context.Context, sig *models.ValidatedSignal) *models.ApprovedSignal {
	h.signalsProcessed.Add(1)

	def, ok := h.sectors[sig.Ticker]
	if !ok {
		h.reject(ReasonUnknownSector)
		return nil
	}

	if !h.CheckCorrelation(def.Name) {
		h.reject(ReasonSectorConcentration)
		return nil
	}
	if !h.CheckExposureLimit(def.Name, def.ExposureLimit) {
		h.reject(ReasonExposureLimit)
		return nil
	}

	return &models.ApprovedSignal{
		ValidatedSignal: *sig,
		ApproverID:      h.cfg.ID,
		ApprovedAt:      time.Now(),
		Sector:          def.Name,
		SectorRisk:      h.CalculateSectorRisk(ctx, sig.Ticker, def.Name),
	}
}

// CheckExposureLimit passes iff the sector's exposure after adding the
// proposed position share stays within the limit. The boundary is
// inclusive: exposureAfter == limit passes.
func (h *SectorHead) CheckExposureLimit(sector string, limit float64) bool {
	exposureAfter := h.portfolio.SectorExposure(sector) + h.cfg.ProposedFraction
	return exposureAfter <= limit+1e-9
}

// CheckCorrelation enforces the hard concentration ceiling: a sector already
// holding maxSectorPositions concurrent positions rejects any new entrant,
// independent of remaining exposure headroom.
func (h *SectorHead) CheckCorrelation(sector string) bool {
	return h.portfolio.SectorPositions(sector) < maxSectorPositions
}

// CalculateSectorRisk scores the sector on a 0-100 scale from current
// exposure, a volatility proxy, momentum, and the market regime.
func (h *SectorHead) CalculateSectorRisk(ctx context.Context, ticker, sector string) float64 {
	def, ok := h.sectors[ticker]
	limit := models.DefaultExposureLimit
	if ok {
		limit = def.ExposureLimit
	}

	// Exposure term: how much of the sector's headroom is already used.
	score := h.portfolio.SectorExposure(sector) / limit * 30

	// Volatility and momentum terms from the ticker's current observation.
	if snap, err := h.provider.Quote(ctx, ticker); err == nil {
		score += math.Min(math.Abs(snap.ChangePct)*6, 30)
		if snap.RSI > 70 || snap.RSI < 30 {
			score += 10
		}
		if snap.TrendDirection < 0 {
			score += 10
		}
	}

	// Regime term.
	if regime, err := h.provider.Regime(ctx); err == nil {
		switch regime {
		case market.RegimeVolatile:
			score += 20
		case market.RegimeBear:
			score += 10
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (h *SectorHead) publish(ctx context.Context, sig *models.ApprovedSignal) {
	values, err := models.EncodeSignal(sig.Ticker, sig)
	if err != nil {
		h.lgr.Error("encode approved signal", logger.Error(err))
		return
	}
	if _, err := h.broker.Publish(ctx, ApprovedStream, values); err != nil {
		h.lgr.Warn("publish approved signal failed", logger.String("ticker", sig.Ticker), logger.Error(err))
	}
}

func (h *SectorHead) reject(reason string) {
	h.signalsRejected.Add(1)
	h.histMu.Lock()
	h.rejections[reason]++
	h.histMu.Unlock()
}
