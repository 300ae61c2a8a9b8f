package director

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"TradeFloor/internal/agents/sectorhead"
	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/internal/risk"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

// ExecutionStream carries the director's final, sized signals.
const ExecutionStream = "signals:execution"

// ConsumerGroup is the singleton group over the approved stream.
const ConsumerGroup = "master_director"

// Rejection reasons tracked in the histogram.
const (
	ReasonLowConfidence    = "low_confidence"
	ReasonExposureLimit    = "exposure_limit"
	ReasonPositionOpen     = "position_open"
	ReasonInsufficientCash = "insufficient_cash"
)

// stopLossFraction bounds the loss on one position relative to its size.
const stopLossFraction = 0.08

// newsWindow is how far back the news-sentiment series is read.
const newsWindow = 6 * time.Hour

// Egress hands finished execution signals to the external execution
// collaborator.
type Egress interface {
	PublishExecution(ctx context.Context, sig *models.ExecutionSignal) error
}

// Config holds the director's identity and sizing tuning.
type Config struct {
	ID          string
	SectorHeads []string // supervised sector head ids

	ConfidenceThreshold float64
	MaxPositionFraction float64
	DecisionLogSize     int

	ConsumeBatch int64
	ConsumeBlock time.Duration
}

// DecisionRecord is one entry of the bounded rolling decision log.
type DecisionRecord struct {
	Ticker     string    `json:"ticker"`
	Action     string    `json:"action"`
	Approved   bool      `json:"approved"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Director is the tier-1 singleton. It gathers portfolio, market, risk, and
// news context for each approved signal, renders a confidence-gated decision
// through its strategy, and emits sized execution signals.
type Director struct {
	cfg       Config
	strategy  Strategy
	fallback  *RuleStrategy
	broker    substrate.MessageBroker
	ts        substrate.TimeSeriesStore
	portfolio *risk.PortfolioState
	provider  market.Provider
	egress    Egress
	lgr       *logger.Logger

	signalsProcessed atomic.Int64
	signalsApproved  atomic.Int64
	signalsRejected  atomic.Int64
	fallbackUsed     atomic.Int64

	histMu     sync.Mutex
	rejections map[string]int64

	logMu       sync.Mutex
	decisionLog []DecisionRecord
}

// New creates the director. strategy may be nil, in which case the
// deterministic path is the only one.
func New(cfg Config, strategy Strategy, broker substrate.MessageBroker, ts substrate.TimeSeriesStore, portfolio *risk.PortfolioState, provider market.Provider, egress Egress, lgr *logger.Logger) *Director {
	fallback := NewRuleStrategy(cfg.ConfidenceThreshold)
	if strategy == nil {
		strategy = fallback
	}
	if cfg.DecisionLogSize <= 0 {
		cfg.DecisionLogSize = 100
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = 0.05
	}
	return &Director{
		cfg:        cfg,
		strategy:   strategy,
		fallback:   fallback,
		broker:     broker,
		ts:         ts,
		portfolio:  portfolio,
		provider:   provider,
		egress:     egress,
		lgr:        lgr.With(logger.String("agent", cfg.ID)),
		rejections: make(map[string]int64),
	}
}

func (d *Director) ID() string        { return d.cfg.ID }
func (d *Director) Tier() models.Tier { return models.TierDirector }

// Record snapshots the director's state for orchestrator stats.
func (d *Director) Record() models.AgentRecord {
	return models.AgentRecord{
		ID:    d.cfg.ID,
		Tier:  models.TierDirector,
		Scope: d.cfg.SectorHeads,
		Counters: models.AgentCounters{
			SignalsProcessed: d.signalsProcessed.Load(),
			SignalsApproved:  d.signalsApproved.Load(),
			SignalsRejected:  d.signalsRejected.Load(),
		},
	}
}

// RejectionHistogram returns a copy of the per-reason rejection counts.
func (d *Director) RejectionHistogram() map[string]int64 {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	out := make(map[string]int64, len(d.rejections))
	for k, v := range d.rejections {
		out[k] = v
	}
	return out
}

// DecisionLog returns a copy of the rolling decision log, newest last.
func (d *Director) DecisionLog() []DecisionRecord {
	d.logMu.Lock()
	defer d.logMu.Unlock()
	out := make([]DecisionRecord, len(d.decisionLog))
	copy(out, d.decisionLog)
	return out
}

// FallbackDecisions reports how often the deterministic fallback covered a
// provider failure.
func (d *Director) FallbackDecisions() int64 { return d.fallbackUsed.Load() }

// Run consumes the approved stream until ctx is cancelled.
func (d *Director) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := d.broker.Consume(ctx, sectorhead.ApprovedStream, ConsumerGroup, d.cfg.ID, d.cfg.ConsumeBatch, d.cfg.ConsumeBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.lgr.Warn("consume failed", logger.Error(err))
			continue
		}
		for _, msg := range msgs {
			approved, err := models.DecodeApprovedSignal(msg.Values)
			if err != nil {
				d.lgr.Warn("malformed signal dropped", logger.String("id", msg.ID), logger.Error(err))
				continue
			}
			if exec := d.MakeDecision(ctx, approved); exec != nil {
				d.emit(ctx, exec)
			}
		}
	}
}

// GatherContext assembles the portfolio snapshot, market regime, aggregate
// portfolio risk, and recent news sentiment for one signal.
func (d *Director) GatherContext(ctx context.Context, sig *models.ApprovedSignal) *DecisionContext {
	regime, err := d.provider.Regime(ctx)
	if err != nil {
		regime = market.RegimeNeutral
	}

	now := time.Now()
	news, err := d.ts.QueryRange(ctx, "sentiment:"+sig.Ticker, now.Add(-newsWindow), now)
	if err != nil {
		d.lgr.Debug("news query failed", logger.String("ticker", sig.Ticker), logger.Error(err))
	}

	return &DecisionContext{
		Portfolio:     d.portfolio.Snapshot(),
		Regime:        regime,
		PortfolioRisk: d.portfolio.PortfolioRisk(),
		News:          news,
	}
}

// MakeDecision returns a sized execution signal, or nil when the signal is
// rejected. A provider failure is absorbed by the deterministic fallback;
// callers never see the difference.
func (d *Director) MakeDecision(ctx context.Context, sig *models.ApprovedSignal) *models.ExecutionSignal {
	d.signalsProcessed.Add(1)

	dctx := d.GatherContext(ctx, sig)

	decision, err := d.strategy.Decide(ctx, sig, dctx)
	if err != nil {
		d.fallbackUsed.Add(1)
		d.lgr.Warn("decision provider failed, using fallback", logger.Error(err))
		decision, err = d.fallback.Decide(ctx, sig, dctx)
		if err != nil {
			d.lgr.Error("fallback decision failed", logger.Error(err))
			return nil
		}
	}

	d.recordDecision(sig, decision)

	if !decision.Approved {
		d.reject(ReasonLowConfidence)
		return nil
	}

	exec := d.CreateExecutionSignal(sig, decision, dctx)

	// Reserve the position through the authoritative accessor; losing the
	// race to another approval in the same sector rejects here.
	if err := d.portfolio.CheckAndReserve(sig.Ticker, sig.Sector, exec.PositionSize, exposureLimitOf(sig)); err != nil {
		d.reject(reserveReason(err))
		d.lgr.Info("position reserve failed", logger.String("ticker", sig.Ticker), logger.Error(err))
		return nil
	}

	d.signalsApproved.Add(1)
	return exec
}

// CreateExecutionSignal sizes the position and stamps the director fields.
// Size scales with decision confidence and is damped by sector risk; the
// max-loss bound follows the stop-loss fraction.
func (d *Director) CreateExecutionSignal(sig *models.ApprovedSignal, decision *Decision, dctx *DecisionContext) *models.ExecutionSignal {
	base := dctx.Portfolio.TotalValue * d.cfg.MaxPositionFraction
	size := base * (decision.Confidence / 100) * (1 - sig.SectorRisk/200)
	if size < 0 {
		size = 0
	}

	return &models.ExecutionSignal{
		ApprovedSignal:     *sig,
		DirectorApproved:   true,
		DirectorConfidence: decision.Confidence,
		DirectorReasoning:  decision.Reasoning,
		PositionSize:       size,
		MaxLoss:            size * stopLossFraction,
		DecidedAt:          time.Now(),
	}
}

func (d *Director) emit(ctx context.Context, exec *models.ExecutionSignal) {
	values, err := models.EncodeSignal(exec.Ticker, exec)
	if err != nil {
		d.lgr.Error("encode execution signal", logger.Error(err))
		return
	}
	if _, err := d.broker.Publish(ctx, ExecutionStream, values); err != nil {
		d.lgr.Warn("publish execution signal failed", logger.String("ticker", exec.Ticker), logger.Error(err))
	}

	if d.egress != nil {
		if err := d.egress.PublishExecution(ctx, exec); err != nil {
			d.lgr.Warn("egress publish failed", logger.String("ticker", exec.Ticker), logger.Error(err))
		}
	}

	// Feed the source scanner's rolling win-rate series. Until execution
	// outcomes flow back, director approval stands in for the outcome.
	sample := exec.DirectorConfidence / 100
	if err := d.ts.AddPoint(ctx, "winrate:"+exec.SourceAgent, time.Now(), sample); err != nil {
		d.lgr.Debug("winrate sample failed", logger.Error(err))
	}
}

func (d *Director) recordDecision(sig *models.ApprovedSignal, decision *Decision) {
	d.logMu.Lock()
	defer d.logMu.Unlock()

	d.decisionLog = append(d.decisionLog, DecisionRecord{
		Ticker:     sig.Ticker,
		Action:     string(sig.Action),
		Approved:   decision.Approved,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		DecidedAt:  time.Now(),
	})
	if len(d.decisionLog) > d.cfg.DecisionLogSize {
		d.decisionLog = d.decisionLog[len(d.decisionLog)-d.cfg.DecisionLogSize:]
	}
}

func (d *Director) reject(reason string) {
	d.signalsRejected.Add(1)
	d.histMu.Lock()
	d.rejections[reason]++
	d.histMu.Unlock()
}

func exposureLimitOf(sig *models.ApprovedSignal) float64 {
	// Sector limits are uniform today; the approved signal carries the
	// sector so a per-sector override stays a local change.
	return models.DefaultExposureLimit
}

// reserveReason maps a reservation failure to its histogram bucket.
func reserveReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrPositionOpen):
		return ReasonPositionOpen
	case errors.Is(err, risk.ErrInsufficientCash):
		return ReasonInsufficientCash
	default:
		return ReasonExposureLimit
	}
}
