package teamlead

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeFloor/internal/agents/scanner"
	"TradeFloor/internal/domain/models"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func newTestLead(t *testing.T, broker substrate.MessageBroker, ts substrate.TimeSeriesStore) *TeamLead {
	t.Helper()
	return New(Config{
		ID:               "team_lead_1",
		Scanners:         []string{"scanner_1", "scanner_2"},
		ScoreThreshold:   60.0,
		ReliabilityFloor: 0.50,
		ConsensusFloor:   0.30,
		ConsumeBatch:     10,
		ConsumeBlock:     50 * time.Millisecond,
	}, broker, ts, testLogger(t))
}

func rawSignal(ticker, agent string, action models.Action, score float64) *models.RawSignal {
	return &models.RawSignal{
		Ticker:      ticker,
		Action:      action,
		Score:       score,
		Confidence:  0.7,
		SourceAgent: agent,
		Timestamp:   time.Now(),
		ScanType:    models.ScanDeep,
	}
}

func TestValidateRejectsBelowScoreThreshold(t *testing.T) {
	tl := newTestLead(t, substrate.NewMemoryBroker(), substrate.NewMemoryTimeSeries())

	got := tl.ValidateSignal(context.Background(), rawSignal("TSLA", "scanner_1", models.ActionBuy, 55))
	assert.Nil(t, got)
	assert.Equal(t, int64(1), tl.RejectionHistogram()[ReasonScoreThreshold])
}

func TestValidatePassesWithNeutralDefaults(t *testing.T) {
	tl := newTestLead(t, substrate.NewMemoryBroker(), substrate.NewMemoryTimeSeries())

	// Unseen agent (neutral 0.5 reliability, not penalized on first sight)
	// and no peer data (neutral 0.5 consensus): both clear the floors.
	got := tl.ValidateSignal(context.Background(), rawSignal("TSLA", "scanner_1", models.ActionBuy, 85))
	require.NotNil(t, got)
	assert.Equal(t, 0.5, got.SourceReliability)
	assert.Equal(t, 0.5, got.PeerConsensus)
	assert.Equal(t, "team_lead_1", got.ValidatorID)
	// 0.4*0.85 + 0.3*0.5 + 0.3*0.5
	assert.InDelta(t, 0.64, got.ValidationConfidence, 1e-9)

	// Raw fields carried over untouched.
	assert.Equal(t, "TSLA", got.Ticker)
	assert.Equal(t, 85.0, got.Score)
	assert.Equal(t, "scanner_1", got.SourceAgent)
}

func TestValidateRejectsUnreliableSource(t *testing.T) {
	tl := newTestLead(t, substrate.NewMemoryBroker(), substrate.NewMemoryTimeSeries())
	tl.SetReliability("scanner_9", 0.2)

	got := tl.ValidateSignal(context.Background(), rawSignal("TSLA", "scanner_9", models.ActionBuy, 85))
	assert.Nil(t, got)
	assert.Equal(t, int64(1), tl.RejectionHistogram()[ReasonLowReliability])
}

func TestReliabilityFromWinRateSeries(t *testing.T) {
	ts := substrate.NewMemoryTimeSeries()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, ts.AddPoint(ctx, "winrate:scanner_3", now.Add(-time.Duration(i)*time.Minute), 0.9))
	}

	tl := newTestLead(t, substrate.NewMemoryBroker(), ts)
	got := tl.ValidateSignal(ctx, rawSignal("TSLA", "scanner_3", models.ActionBuy, 85))
	require.NotNil(t, got)
	// 20 points at 0.9 blended against the 0.5 prior: well above neutral.
	assert.Greater(t, got.SourceReliability, 0.7)
}

func TestValidateRejectsOnPeerDisagreement(t *testing.T) {
	tl := newTestLead(t, substrate.NewMemoryBroker(), substrate.NewMemoryTimeSeries())
	ctx := context.Background()

	// Four peers all read TSLA as a SELL.
	for _, agent := range []string{"scanner_2", "scanner_3", "scanner_4", "scanner_5"} {
		tl.ValidateSignal(ctx, rawSignal("TSLA", agent, models.ActionSell, 75))
	}

	// A lone BUY against them: 0/4 agreement, below the 0.30 floor.
	got := tl.ValidateSignal(ctx, rawSignal("TSLA", "scanner_1", models.ActionBuy, 85))
	assert.Nil(t, got)
	assert.Equal(t, int64(1), tl.RejectionHistogram()[ReasonLowConsensus])
}

func TestPeerConsensusCountsAgreement(t *testing.T) {
	tl := newTestLead(t, substrate.NewMemoryBroker(), substrate.NewMemoryTimeSeries())
	ctx := context.Background()

	tl.ValidateSignal(ctx, rawSignal("NVDA", "scanner_2", models.ActionBuy, 75))
	tl.ValidateSignal(ctx, rawSignal("NVDA", "scanner_3", models.ActionBuy, 80))
	tl.ValidateSignal(ctx, rawSignal("NVDA", "scanner_4", models.ActionSell, 70))

	got := tl.ValidateSignal(ctx, rawSignal("NVDA", "scanner_1", models.ActionBuy, 85))
	require.NotNil(t, got)
	// 2 of 3 peers agree.
	assert.InDelta(t, 2.0/3.0, got.PeerConsensus, 1e-9)
}

func TestRunValidatesAndRepublishes(t *testing.T) {
	broker := substrate.NewMemoryBroker()
	tl := newTestLead(t, broker, substrate.NewMemoryTimeSeries())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pass := rawSignal("TSLA", "scanner_1", models.ActionBuy, 85)
	fail := rawSignal("AAPL", "scanner_2", models.ActionSell, 40)
	for _, sig := range []*models.RawSignal{pass, fail} {
		values, err := models.EncodeSignal(sig.Ticker, sig)
		require.NoError(t, err)
		_, err = broker.Publish(ctx, scanner.UniverseStream, values)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		tl.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, _ := broker.StreamLength(ctx, ValidatedStream)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	msgs, err := broker.Consume(context.Background(), ValidatedStream, "check", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	validated, err := models.DecodeValidatedSignal(msgs[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "TSLA", validated.Ticker)

	rec := tl.Record()
	assert.Equal(t, int64(2), rec.Counters.SignalsProcessed)
	assert.Equal(t, int64(1), rec.Counters.SignalsRejected)
}
