package scanner

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

// UniverseStream is where every scanner publishes its candidates.
const UniverseStream = "signals:universe"

const lightScanConfidence = 0.3

// Deep-scan approval floors.
const (
	deepScoreFloor      = 60.0
	deepConfidenceFloor = 0.6
)

// Config holds one scanner's identity and tuning.
type Config struct {
	ID            string
	Tickers       []string
	LightInterval time.Duration
	DeepInterval  time.Duration
	PriceFloor    float64 // penny-stock exclusion, dollars
	MoveThreshold float64 // intraday move magnitude, percent
}

// Scanner is a tier-4 unit. It owns a disjoint slice of the ticker universe,
// runs a cheap light scan on cadence, and runs an expensive deep scan against
// the tickers the light scan marked hot.
type Scanner struct {
	cfg      Config
	provider market.Provider
	broker   substrate.MessageBroker
	lgr      *logger.Logger

	mu  sync.Mutex
	hot map[string]struct{}

	signalsGenerated atomic.Int64
	scansCompleted   atomic.Int64
	fetchFailures    atomic.Int64
}

// New creates a scanner over its assigned ticker slice.
func New(cfg Config, provider market.Provider, broker substrate.MessageBroker, lgr *logger.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg,
		provider: provider,
		broker:   broker,
		lgr:      lgr.With(logger.String("agent", cfg.ID)),
		hot:      make(map[string]struct{}),
	}
}

func (s *Scanner) ID() string        { return s.cfg.ID }
func (s *Scanner) Tier() models.Tier { return models.TierScanner }

// Record snapshots the scanner's state for orchestrator stats.
func (s *Scanner) Record() models.AgentRecord {
	return models.AgentRecord{
		ID:    s.cfg.ID,
		Tier:  models.TierScanner,
		Scope: s.cfg.Tickers,
		Counters: models.AgentCounters{
			SignalsGenerated: s.signalsGenerated.Load(),
			SignalsProcessed: s.scansCompleted.Load(),
		},
	}
}

// Run drives both scan cadences until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	light := time.NewTicker(s.cfg.LightInterval)
	deep := time.NewTicker(s.cfg.DeepInterval)
	defer light.Stop()
	defer deep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-light.C:
			s.runLightCycle(ctx)
		case <-deep.C:
			s.runDeepCycle(ctx)
		}
	}
}

// runLightCycle light-scans every assigned ticker. A fetch failure on one
// ticker is logged and skipped; the rest of the cycle continues.
func (s *Scanner) runLightCycle(ctx context.Context) {
	for _, ticker := range s.cfg.Tickers {
		if ctx.Err() != nil {
			return
		}
		snap, err := s.provider.Quote(ctx, ticker)
		if err != nil {
			s.fetchFailures.Add(1)
			s.lgr.Debug("light scan fetch failed", logger.String("ticker", ticker), logger.Error(err))
			continue
		}
		s.scansCompleted.Add(1)
		if sig := s.ScanLight(snap); sig != nil {
			s.publishSignal(ctx, sig)
		}
	}
}

// runDeepCycle deep-scans the hot set. When nothing is hot the head of the
// assigned slice is sampled instead so a quiet book still gets coverage.
func (s *Scanner) runDeepCycle(ctx context.Context) {
	for _, ticker := range s.deepTargets() {
		if ctx.Err() != nil {
			return
		}
		snap, err := s.provider.Quote(ctx, ticker)
		if err != nil {
			s.fetchFailures.Add(1)
			s.lgr.Debug("deep scan fetch failed", logger.String("ticker", ticker), logger.Error(err))
			continue
		}
		s.scansCompleted.Add(1)
		if sig := s.ScanDeep(snap); sig != nil {
			s.publishSignal(ctx, sig)
		}
	}
}

// ScanLight is the cheap pass: exclude penny stocks, emit a low-confidence
// candidate only when the intraday move clears the threshold, and mark the
// ticker hot for the next deep cycle.
func (s *Scanner) ScanLight(snap *market.Snapshot) *models.RawSignal {
	if snap.Price < s.cfg.PriceFloor {
		return nil
	}
	move := math.Abs(snap.ChangePct)
	if move < s.cfg.MoveThreshold {
		return nil
	}

	s.markHot(snap.Ticker)

	action := models.ActionBuy
	if snap.ChangePct < 0 {
		action = models.ActionSell
	}
	score := 50 + move*5
	if score > 100 {
		score = 100
	}
	return &models.RawSignal{
		Ticker:      snap.Ticker,
		Action:      action,
		Score:       score,
		Confidence:  lightScanConfidence,
		SourceAgent: s.cfg.ID,
		Timestamp:   time.Now(),
		ScanType:    models.ScanLight,
		Indicators:  []string{"intraday_move"},
	}
}

// ScanDeep combines technical, sentiment, options-flow, and dark-pool inputs
// into a composite score and confidence; emits only when both clear the
// approval floors.
func (s *Scanner) ScanDeep(snap *market.Snapshot) *models.RawSignal {
	var bias float64 // -1..+1, sign is direction
	var indicators []string

	if snap.TrendDirection != 0 {
		bias += 0.30 * float64(snap.TrendDirection)
		indicators = append(indicators, "trend")
	}
	if snap.Sentiment != 0 {
		bias += 0.25 * clamp(snap.Sentiment, -1, 1)
		indicators = append(indicators, "sentiment")
	}
	// Call/put skew: call-heavy flow reads bullish.
	if snap.CallPutRatio > 0 {
		bias += clamp((snap.CallPutRatio-1.0)*0.25, -0.25, 0.25)
		indicators = append(indicators, "options_flow")
	}
	// RSI mean-reversion: oversold reads bullish, overbought bearish.
	bias += clamp((50-snap.RSI)/50*0.20, -0.20, 0.20)
	indicators = append(indicators, "rsi")
	if snap.MACDHistogram > 0 {
		bias += 0.10
	} else if snap.MACDHistogram < 0 {
		bias -= 0.10
	}
	indicators = append(indicators, "macd")

	strength := math.Abs(clamp(bias, -1, 1))
	score := 50 + strength*50
	// Dark-pool corroboration lifts confidence, not direction.
	confidence := 0.35 + strength*0.55 + snap.DarkPoolActivity*0.10

	if score < deepScoreFloor || confidence < deepConfidenceFloor {
		return nil
	}

	action := models.ActionBuy
	if bias < 0 {
		action = models.ActionSell
	}
	return &models.RawSignal{
		Ticker:      snap.Ticker,
		Action:      action,
		Score:       score,
		Confidence:  confidence,
		SourceAgent: s.cfg.ID,
		Timestamp:   time.Now(),
		ScanType:    models.ScanDeep,
		Indicators:  indicators,
	}
}

func (s *Scanner) publishSignal(ctx context.Context, sig *models.RawSignal) {
	values, err := models.EncodeSignal(sig.Ticker, sig)
	if err != nil {
		s.lgr.Error("encode signal", logger.Error(err))
		return
	}
	if _, err := s.broker.Publish(ctx, UniverseStream, values); err != nil {
		s.lgr.Warn("publish signal failed", logger.String("ticker", sig.Ticker), logger.Error(err))
		return
	}
	s.signalsGenerated.Add(1)
}

func (s *Scanner) markHot(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hot[ticker] = struct{}{}
}

// HotTickers returns the current hot set.
func (s *Scanner) HotTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hot))
	for t := range s.hot {
		out = append(out, t)
	}
	return out
}

const coldDeepSample = 3

func (s *Scanner) deepTargets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.hot) > 0 {
		out := make([]string, 0, len(s.hot))
		for t := range s.hot {
			out = append(out, t)
		}
		return out
	}
	if len(s.cfg.Tickers) <= coldDeepSample {
		return s.cfg.Tickers
	}
	return s.cfg.Tickers[:coldDeepSample]
}

// FetchFailures reports skipped per-ticker fetch errors.
func (s *Scanner) FetchFailures() int64 { return s.fetchFailures.Load() }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
