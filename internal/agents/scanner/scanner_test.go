package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func newTestScanner(t *testing.T, provider market.Provider, broker substrate.MessageBroker) *Scanner {
	t.Helper()
	return New(Config{
		ID:            "scanner_1",
		Tickers:       []string{"AAPL", "MSFT", "NVDA"},
		LightInterval: 10 * time.Millisecond,
		DeepInterval:  50 * time.Millisecond,
		PriceFloor:    5.0,
		MoveThreshold: 2.0,
	}, provider, broker, testLogger(t))
}

func TestScanLightEmitsOnLargeMove(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	sig := s.ScanLight(&market.Snapshot{Ticker: "AAPL", Price: 190, ChangePct: 3.1})
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 0.3, sig.Confidence)
	assert.Equal(t, models.ScanLight, sig.ScanType)
	assert.Contains(t, s.HotTickers(), "AAPL")
}

func TestScanLightEmitsSellOnDrop(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	sig := s.ScanLight(&market.Snapshot{Ticker: "MSFT", Price: 410, ChangePct: -2.4})
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionSell, sig.Action)
}

func TestScanLightRejectsPennyStock(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	// Big move but priced below the $5 floor: no signal, not marked hot.
	sig := s.ScanLight(&market.Snapshot{Ticker: "PNNY", Price: 3.20, ChangePct: 8.0})
	assert.Nil(t, sig)
	assert.Empty(t, s.HotTickers())
}

func TestScanLightRejectsSmallMove(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	sig := s.ScanLight(&market.Snapshot{Ticker: "AAPL", Price: 190, ChangePct: 1.2})
	assert.Nil(t, sig)
}

func TestScanDeepEmitsOnStrongAlignment(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	// Everything aligned bullish.
	sig := s.ScanDeep(&market.Snapshot{
		Ticker:           "NVDA",
		Price:            880,
		TrendDirection:   1,
		Sentiment:        0.8,
		CallPutRatio:     1.9,
		RSI:              35,
		MACDHistogram:    1.2,
		DarkPoolActivity: 0.7,
	})
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.GreaterOrEqual(t, sig.Score, 60.0)
	assert.GreaterOrEqual(t, sig.Confidence, 0.6)
	assert.Equal(t, models.ScanDeep, sig.ScanType)
	assert.Contains(t, sig.Indicators, "options_flow")
}

func TestScanDeepRejectsWeakComposite(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	// Mixed indicators cancel out; composite stays under the floors.
	sig := s.ScanDeep(&market.Snapshot{
		Ticker:         "AAPL",
		Price:          190,
		TrendDirection: 1,
		Sentiment:      -0.6,
		CallPutRatio:   0.9,
		RSI:            55,
		MACDHistogram:  -0.1,
	})
	assert.Nil(t, sig)
}

func TestScanDeepBearishAlignment(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	sig := s.ScanDeep(&market.Snapshot{
		Ticker:           "XOM",
		Price:            110,
		TrendDirection:   -1,
		Sentiment:        -0.9,
		CallPutRatio:     0.4,
		RSI:              78,
		MACDHistogram:    -0.8,
		DarkPoolActivity: 0.6,
	})
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionSell, sig.Action)
}

func TestLightCycleSkipsFailedTickerAndContinues(t *testing.T) {
	provider := market.NewSimProvider()
	provider.FailTicker("AAPL", true)
	provider.SetSnapshot(&market.Snapshot{Ticker: "MSFT", Price: 410, ChangePct: 2.6})
	provider.SetSnapshot(&market.Snapshot{Ticker: "NVDA", Price: 880, ChangePct: 3.4})

	broker := substrate.NewMemoryBroker()
	s := newTestScanner(t, provider, broker)

	s.runLightCycle(context.Background())

	// The failed ticker was skipped, the other two still emitted.
	assert.Equal(t, int64(1), s.FetchFailures())
	n, err := broker.StreamLength(context.Background(), UniverseStream)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPublishedSignalRoundTrips(t *testing.T) {
	provider := market.NewSimProvider()
	provider.SetSnapshot(&market.Snapshot{Ticker: "AAPL", Price: 190, ChangePct: 2.8})
	provider.SetSnapshot(&market.Snapshot{Ticker: "MSFT", Price: 410, ChangePct: 0.1})
	provider.SetSnapshot(&market.Snapshot{Ticker: "NVDA", Price: 880, ChangePct: 0.2})

	broker := substrate.NewMemoryBroker()
	s := newTestScanner(t, provider, broker)
	s.runLightCycle(context.Background())

	msgs, err := broker.Consume(context.Background(), UniverseStream, "team_leads", "team_lead_1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	sig, err := models.DecodeRawSignal(msgs[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", sig.Ticker)
	assert.Equal(t, "scanner_1", sig.SourceAgent)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestScanner(t, market.NewSimProvider(), substrate.NewMemoryBroker())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop on cancel")
	}
}
