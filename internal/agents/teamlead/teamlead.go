package teamlead

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"TradeFloor/internal/agents/scanner"
	"TradeFloor/internal/domain/models"
	"TradeFloor/pkg/cache"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

// ValidatedStream carries signals that cleared team-lead validation.
const ValidatedStream = "signals:validated"

// ConsumerGroup is the stage-scoped group over the universe stream.
const ConsumerGroup = "team_leads"

// Rejection reasons tracked in the histogram.
const (
	ReasonScoreThreshold = "score_threshold"
	ReasonLowReliability = "low_reliability"
	ReasonLowConsensus   = "low_consensus"
)

// neutralPrior is used for unseen agents and tickers without peer data.
const neutralPrior = 0.5

// peerWindow bounds how long a peer observation counts toward consensus.
const peerWindow = 5 * time.Minute

// reliabilityTTL bounds how long a computed reliability is served before the
// win-rate series is consulted again.
const reliabilityTTL = 5 * time.Minute

// Config holds one team lead's identity and gate tuning.
type Config struct {
	ID       string
	Scanners []string // supervised scanner ids

	ScoreThreshold   float64
	ReliabilityFloor float64
	ConsensusFloor   float64

	ConsumeBatch int64
	ConsumeBlock time.Duration
}

type peerObservation struct {
	agent  string
	action models.Action
	seen   time.Time
}

// TeamLead is a tier-3 unit. It consumes raw universe signals through the
// shared consumer group, applies the validation gates in order, and
// republishes survivors enriched with the validation fields.
type TeamLead struct {
	cfg    Config
	broker substrate.MessageBroker
	ts     substrate.TimeSeriesStore
	lgr    *logger.Logger

	relCache *cache.MemoryCache

	mu    sync.Mutex
	peers map[string][]peerObservation // by ticker

	signalsProcessed atomic.Int64
	signalsRejected  atomic.Int64

	histMu     sync.Mutex
	rejections map[string]int64
}

// New creates a team lead over its scanner slice.
func New(cfg Config, broker substrate.MessageBroker, ts substrate.TimeSeriesStore, lgr *logger.Logger) *TeamLead {
	return &TeamLead{
		cfg:        cfg,
		broker:     broker,
		ts:         ts,
		lgr:        lgr.With(logger.String("agent", cfg.ID)),
		relCache:   cache.NewMemoryCache(cache.WithMemoryMaxSize(256)),
		peers:      make(map[string][]peerObservation),
		rejections: make(map[string]int64),
	}
}

func (t *TeamLead) ID() string        { return t.cfg.ID }
func (t *TeamLead) Tier() models.Tier { return models.TierTeamLead }

// Record snapshots the lead's state for orchestrator stats.
func (t *TeamLead) Record() models.AgentRecord {
	processed := t.signalsProcessed.Load()
	rejected := t.signalsRejected.Load()
	return models.AgentRecord{
		ID:    t.cfg.ID,
		Tier:  models.TierTeamLead,
		Scope: t.cfg.Scanners,
		Counters: models.AgentCounters{
			SignalsProcessed: processed,
			SignalsApproved:  processed - rejected,
			SignalsRejected:  rejected,
		},
	}
}

// RejectionHistogram returns a copy of the per-reason rejection counts.
func (t *TeamLead) RejectionHistogram() map[string]int64 {
	t.histMu.Lock()
	defer t.histMu.Unlock()
	out := make(map[string]int64, len(t.rejections))
	for k, v := range t.rejections {
		out[k] = v
	}
	return out
}

// Run consumes the universe stream until ctx is cancelled.
func (t *TeamLead) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := t.broker.Consume(ctx, scanner.UniverseStream, ConsumerGroup, t.cfg.ID, t.cfg.ConsumeBatch, t.cfg.ConsumeBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.lgr.Warn("consume failed", logger.Error(err))
			continue
		}
		for _, msg := range msgs {
			raw, err := models.DecodeRawSignal(msg.Values)
			if err != nil {
				t.lgr.Warn("malformed signal dropped", logger.String("id", msg.ID), logger.Error(err))
				continue
			}
			if validated := t.ValidateSignal(ctx, raw); validated != nil {
				t.publish(ctx, validated)
			}
		}
	}
}

// ValidateSignal applies the ordered gates and returns the enriched signal,
// or nil with the rejection reason recorded. Gate order is fixed: score
// threshold first (unconditional hard reject), then source reliability, then
// peer consensus. The surviving signal carries all three factors blended
// into its validation confidence.
func (t *TeamLead) ValidateSignal(ctx context.Context, raw *models.RawSignal) *models.ValidatedSignal {
	t.signalsProcessed.Add(1)
	t.observePeer(raw)

	if raw.Score < t.cfg.ScoreThreshold {
		t.reject(ReasonScoreThreshold)
		return nil
	}

	reliability := t.sourceReliability(ctx, raw.SourceAgent)
	if reliability < t.cfg.ReliabilityFloor {
		t.reject(ReasonLowReliability)
		return nil
	}

	consensus := t.peerConsensus(raw)
	if consensus < t.cfg.ConsensusFloor {
		t.reject(ReasonLowConsensus)
		return nil
	}

	confidence := 0.4*(raw.Score/100) + 0.3*reliability + 0.3*consensus
	return &models.ValidatedSignal{
		RawSignal:            *raw,
		ValidatorID:          t.cfg.ID,
		ValidatedAt:          time.Now(),
		SourceReliability:    reliability,
		PeerConsensus:        consensus,
		ValidationConfidence: confidence,
	}
}

func (t *TeamLead) publish(ctx context.Context, sig *models.ValidatedSignal) {
	values, err := models.EncodeSignal(sig.Ticker, sig)
	if err != nil {
		t.lgr.Error("encode validated signal", logger.Error(err))
		return
	}
	if _, err := t.broker.Publish(ctx, ValidatedStream, values); err != nil {
		t.lgr.Warn("publish validated signal failed", logger.String("ticker", sig.Ticker), logger.Error(err))
	}
}

func (t *TeamLead) reject(reason string) {
	t.signalsRejected.Add(1)
	t.histMu.Lock()
	t.rejections[reason]++
	t.histMu.Unlock()
}

// sourceReliability reads the agent's rolling win-rate series. A newly-seen
// agent gets the neutral prior and is never penalized on first sight; the
// prior is then refined from recorded win-rate points.
func (t *TeamLead) sourceReliability(ctx context.Context, agentID string) float64 {
	key := cache.GenerateKey("reliability", agentID)
	var cached interface{}
	if err := t.relCache.Get(ctx, key, &cached); err == nil {
		if r, ok := cached.(float64); ok {
			return r
		}
	}

	r := neutralPrior
	now := time.Now()
	points, err := t.ts.QueryRange(ctx, "winrate:"+agentID, now.Add(-24*time.Hour), now)
	if err == nil && len(points) > 0 {
		var sum float64
		for _, p := range points {
			sum += p.Value
		}
		observed := sum / float64(len(points))
		// Blend toward the observation as evidence accumulates.
		weight := float64(len(points)) / float64(len(points)+5)
		r = neutralPrior*(1-weight) + observed*weight
	}

	_ = t.relCache.Set(ctx, key, r, reliabilityTTL)
	return r
}

// SetReliability overrides an agent's cached reliability. Test hook and
// orchestrator feedback path.
func (t *TeamLead) SetReliability(agentID string, r float64) {
	key := cache.GenerateKey("reliability", agentID)
	_ = t.relCache.Set(context.Background(), key, r, reliabilityTTL)
}

// observePeer records a signal into the per-ticker sliding window used by
// the consensus gate.
func (t *TeamLead) observePeer(raw *models.RawSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-peerWindow)
	kept := t.peers[raw.Ticker][:0]
	for _, o := range t.peers[raw.Ticker] {
		if o.seen.After(cutoff) {
			kept = append(kept, o)
		}
	}
	t.peers[raw.Ticker] = append(kept, peerObservation{
		agent:  raw.SourceAgent,
		action: raw.Action,
		seen:   time.Now(),
	})
}

// peerConsensus returns the fraction of other scanners recently reporting
// the same directional bias for the ticker. With no peer data it returns
// the neutral prior.
func (t *TeamLead) peerConsensus(raw *models.RawSignal) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var agree, total int
	for _, o := range t.peers[raw.Ticker] {
		if o.agent == raw.SourceAgent {
			continue
		}
		total++
		if o.action == raw.Action {
			agree++
		}
	}
	if total == 0 {
		return neutralPrior
	}
	return float64(agree) / float64(total)
}
