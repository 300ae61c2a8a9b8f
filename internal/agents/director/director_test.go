package director

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFloor/internal/agents/sectorhead"
	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/internal/risk"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

// neutralProvider keeps decision fixtures deterministic.
type neutralProvider struct{}

func (neutralProvider) Quote(_ context.Context, ticker string) (*market.Snapshot, error) {
	return &market.Snapshot{Ticker: ticker, Price: 100}, nil
}

func (neutralProvider) Regime(context.Context) (string, error) {
	return market.RegimeNeutral, nil
}

// failingStrategy simulates a dead decision provider.
type failingStrategy struct{}

func (failingStrategy) Decide(context.Context, *models.ApprovedSignal, *DecisionContext) (*Decision, error) {
	return nil, fmt.Errorf("decision provider: %w", ErrDecisionProvider)
}

// captureEgress records everything published to the execution collaborator.
type captureEgress struct {
	mu   sync.Mutex
	sent []*models.ExecutionSignal
}

func (c *captureEgress) PublishExecution(_ context.Context, sig *models.ExecutionSignal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sig)
	return nil
}

func (c *captureEgress) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func approvedSignal(ticker string, score, sectorRisk float64) *models.ApprovedSignal {
	return &models.ApprovedSignal{
		ValidatedSignal: models.ValidatedSignal{
			RawSignal: models.RawSignal{
				Ticker:      ticker,
				Action:      models.ActionBuy,
				Score:       score,
				Confidence:  0.8,
				SourceAgent: "scanner_1",
				Timestamp:   time.Now(),
				ScanType:    models.ScanDeep,
			},
			ValidatorID:          "team_lead_1",
			ValidatedAt:          time.Now(),
			ValidationConfidence: 0.7,
		},
		ApproverID: "sector_head_1",
		ApprovedAt: time.Now(),
		Sector:     "Technology",
		SectorRisk: sectorRisk,
	}
}

func newTestDirector(t *testing.T, strategy Strategy, portfolio *risk.PortfolioState, broker substrate.MessageBroker, ts substrate.TimeSeriesStore, egress Egress) *Director {
	t.Helper()
	return New(Config{
		ID:                  "director_1",
		SectorHeads:         []string{"sector_head_1"},
		ConfidenceThreshold: 70.0,
		MaxPositionFraction: 0.05,
		DecisionLogSize:     100,
		ConsumeBatch:        10,
		ConsumeBlock:        50 * time.Millisecond,
	}, strategy, broker, ts, portfolio, neutralProvider{}, egress, testLogger(t))
}

func TestRuleStrategyApprovesStrongSignal(t *testing.T) {
	strat := NewRuleStrategy(70.0)
	dctx := &DecisionContext{Regime: market.RegimeNeutral}

	decision, err := strat.Decide(context.Background(), approvedSignal("NVDA", 80, 40), dctx)
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.InDelta(t, 80.0, decision.Confidence, 1e-9)
	assert.Contains(t, decision.Reasoning, "NVDA")
}

func TestRuleStrategyRejectsWeakSignal(t *testing.T) {
	strat := NewRuleStrategy(70.0)
	dctx := &DecisionContext{Regime: market.RegimeNeutral}

	decision, err := strat.Decide(context.Background(), approvedSignal("AAPL", 55, 60), dctx)
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	assert.InDelta(t, 59.5, decision.Confidence, 1e-9)
}

func TestRuleStrategyRegimeModifiers(t *testing.T) {
	strat := NewRuleStrategy(70.0)
	sig := approvedSignal("NVDA", 80, 40)

	volatile, err := strat.Decide(context.Background(), sig, &DecisionContext{Regime: market.RegimeVolatile})
	require.NoError(t, err)
	assert.InDelta(t, 70.0, volatile.Confidence, 1e-9)

	bull, err := strat.Decide(context.Background(), sig, &DecisionContext{Regime: market.RegimeBull})
	require.NoError(t, err)
	assert.InDelta(t, 83.0, bull.Confidence, 1e-9)
}

func TestRuleStrategyNewsSentiment(t *testing.T) {
	strat := NewRuleStrategy(70.0)
	sig := approvedSignal("NVDA", 80, 40)

	positive := &DecisionContext{
		Regime: market.RegimeNeutral,
		News:   []substrate.Point{{Value: 0.6}, {Value: 0.5}},
	}
	decision, err := strat.Decide(context.Background(), sig, positive)
	require.NoError(t, err)
	assert.InDelta(t, 83.0, decision.Confidence, 1e-9)

	negative := &DecisionContext{
		Regime: market.RegimeNeutral,
		News:   []substrate.Point{{Value: -0.8}},
	}
	decision, err = strat.Decide(context.Background(), sig, negative)
	require.NoError(t, err)
	assert.InDelta(t, 77.0, decision.Confidence, 1e-9)
}

func TestMakeDecisionApprovesAndSizes(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	ts := substrate.NewMemoryTimeSeries()
	portfolio := risk.NewPortfolioState(100_000)
	d := newTestDirector(t, nil, portfolio, broker, ts, nil)

	exec := d.MakeDecision(context.Background(), approvedSignal("NVDA", 80, 40))
	require.NotNil(t, exec)

	assert.True(t, exec.DirectorApproved)
	assert.InDelta(t, 80.0, exec.DirectorConfidence, 1e-9)
	// 100k * 5% cap * 80% confidence * sector-risk damping (1 - 40/200)
	assert.InDelta(t, 3200.0, exec.PositionSize, 1e-6)
	assert.InDelta(t, 3200.0*stopLossFraction, exec.MaxLoss, 1e-6)
	assert.NotEmpty(t, exec.DirectorReasoning)

	snap := portfolio.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "NVDA", snap.Positions[0].Ticker)
	assert.Equal(t, int64(1), d.Record().Counters.SignalsApproved)
}

func TestMakeDecisionRejectsLowConfidence(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	ts := substrate.NewMemoryTimeSeries()
	portfolio := risk.NewPortfolioState(100_000)
	d := newTestDirector(t, nil, portfolio, broker, ts, nil)

	exec := d.MakeDecision(context.Background(), approvedSignal("AAPL", 55, 60))
	assert.Nil(t, exec)

	assert.Empty(t, portfolio.Snapshot().Positions)
	assert.Equal(t, int64(1), d.Record().Counters.SignalsRejected)
	assert.Equal(t, int64(1), d.RejectionHistogram()[ReasonLowConfidence])
}

func TestMakeDecisionRejectsWhenReserveFails(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	ts := substrate.NewMemoryTimeSeries()
	portfolio := risk.NewPortfolioState(100_000)
	// Fill the sector to its limit before the director sees the signal.
	require.NoError(t, portfolio.CheckAndReserve("TSLA", "Technology", 30_000, 1.0))

	d := newTestDirector(t, nil, portfolio, broker, ts, nil)

	exec := d.MakeDecision(context.Background(), approvedSignal("NVDA", 80, 40))
	assert.Nil(t, exec)
	assert.Equal(t, int64(1), d.RejectionHistogram()[ReasonExposureLimit])

	snap := portfolio.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "TSLA", snap.Positions[0].Ticker)
}

func TestFallbackCoversProviderFailure(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	ts := substrate.NewMemoryTimeSeries()
	portfolio := risk.NewPortfolioState(100_000)
	d := newTestDirector(t, failingStrategy{}, portfolio, broker, ts, nil)

	exec := d.MakeDecision(context.Background(), approvedSignal("NVDA", 80, 40))
	require.NotNil(t, exec)

	// Same outcome the deterministic path would produce on its own.
	assert.InDelta(t, 80.0, exec.DirectorConfidence, 1e-9)
	assert.Equal(t, int64(1), d.FallbackDecisions())
}

func TestDecisionLogIsBounded(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	ts := substrate.NewMemoryTimeSeries()
	portfolio := risk.NewPortfolioState(1_000_000)
	d := New(Config{
		ID:                  "director_1",
		ConfidenceThreshold: 70.0,
		MaxPositionFraction: 0.05,
		DecisionLogSize:     5,
	}, nil, broker, ts, portfolio, neutralProvider{}, nil, testLogger(t))

	for i := 0; i < 8; i++ {
		d.MakeDecision(context.Background(), approvedSignal(fmt.Sprintf("SYM%d", i), 55, 60))
	}

	log := d.DecisionLog()
	require.Len(t, log, 5)
	assert.Equal(t, "SYM7", log[4].Ticker)
	assert.Equal(t, "SYM3", log[0].Ticker)
}

func TestRunConsumesAndEmits(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	ts := substrate.NewMemoryTimeSeries()
	portfolio := risk.NewPortfolioState(100_000)
	egress := &captureEgress{}
	d := newTestDirector(t, nil, portfolio, broker, ts, egress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	values, err := models.EncodeSignal("NVDA", approvedSignal("NVDA", 80, 40))
	require.NoError(t, err)
	_, err = broker.Publish(ctx, sectorhead.ApprovedStream, values)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := broker.StreamLength(ctx, ExecutionStream)
		return err == nil && n == 1 && egress.count() == 1
	}, 2*time.Second, 20*time.Millisecond)

	// The approval feeds the source scanner's win-rate series.
	points, err := ts.QueryRange(ctx, "winrate:scanner_1", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 0.8, points[0].Value, 1e-9)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("director did not stop on cancel")
	}
}

func TestMakeDecisionBucketsReserveFailures(t *testing.T) {
	t.Run("position already open", func(t *testing.T) {
		broker := substrate.NewMemoryBroker()
		ts := substrate.NewMemoryTimeSeries()
		portfolio := risk.NewPortfolioState(100_000)
		require.NoError(t, portfolio.CheckAndReserve("NVDA", "Technology", 1_000, 1.0))

		d := newTestDirector(t, nil, portfolio, broker, ts, nil)

		exec := d.MakeDecision(context.Background(), approvedSignal("NVDA", 80, 40))
		assert.Nil(t, exec)
		assert.Equal(t, int64(1), d.RejectionHistogram()[ReasonPositionOpen])
		assert.Zero(t, d.RejectionHistogram()[ReasonExposureLimit])
	})

	t.Run("insufficient cash", func(t *testing.T) {
		broker := substrate.NewMemoryBroker()
		ts := substrate.NewMemoryTimeSeries()
		portfolio := risk.NewPortfolioState(100_000)
		// Spread holdings below the concentration threshold so the decision
		// still clears the confidence gate, but leave too little cash for
		// the sized position.
		for i, sector := range []string{"Energy", "Healthcare", "Financials", "Utilities", "Materials", "Industrials", "Consumer"} {
			ticker := fmt.Sprintf("HOLD%d", i)
			require.NoError(t, portfolio.CheckAndReserve(ticker, sector, 14_000, 1.0))
		}

		d := newTestDirector(t, nil, portfolio, broker, ts, nil)

		exec := d.MakeDecision(context.Background(), approvedSignal("NVDA", 80, 40))
		assert.Nil(t, exec)
		assert.Equal(t, int64(1), d.RejectionHistogram()[ReasonInsufficientCash])
		assert.Zero(t, d.RejectionHistogram()[ReasonExposureLimit])
	})
}
