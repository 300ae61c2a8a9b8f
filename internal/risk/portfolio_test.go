package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioRiskEmpty(t *testing.T) {
	p := NewPortfolioState(100_000)
	assert.Equal(t, 0.0, p.PortfolioRisk())
}

func TestPortfolioRiskConcentrationPenalty(t *testing.T) {
	p := NewPortfolioState(100_000)
	// $30k in a $100k portfolio: 30% single-position share, above the 15%
	// concentration threshold.
	require.NoError(t, p.CheckAndReserve("TSLA", "consumer_discretionary", 30_000, 0.50))

	risk := p.PortfolioRisk()
	assert.Greater(t, risk, 0.0)

	// A same-size portfolio spread across small positions scores lower.
	q := NewPortfolioState(100_000)
	require.NoError(t, q.CheckAndReserve("AAPL", "technology", 10_000, 0.50))
	require.NoError(t, q.CheckAndReserve("JPM", "financials", 10_000, 0.50))
	require.NoError(t, q.CheckAndReserve("XOM", "energy", 10_000, 0.50))
	assert.Less(t, q.PortfolioRisk(), risk)
}

func TestCheckAndReserveExposureBoundary(t *testing.T) {
	p := NewPortfolioState(100_000)

	// exposureAfter == limit is inclusive: exactly 30% passes.
	require.NoError(t, p.CheckAndReserve("AAPL", "technology", 30_000, 0.30))
	assert.InDelta(t, 0.30, p.SectorExposure("technology"), 1e-9)

	// The next dollar into the sector fails.
	err := p.CheckAndReserve("MSFT", "technology", 1_000, 0.30)
	assert.ErrorIs(t, err, ErrExposureLimit)
}

func TestCheckAndReserveInsufficientCash(t *testing.T) {
	p := NewPortfolioState(1_000)
	err := p.CheckAndReserve("AAPL", "technology", 5_000, 0.90)
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.Empty(t, p.Snapshot().Positions)
}

func TestCheckAndReserveDuplicateTicker(t *testing.T) {
	p := NewPortfolioState(100_000)
	require.NoError(t, p.CheckAndReserve("AAPL", "technology", 5_000, 0.30))
	assert.ErrorIs(t, p.CheckAndReserve("AAPL", "technology", 5_000, 0.30), ErrPositionOpen)
}

func TestConcurrentReservesNeverExceedLimit(t *testing.T) {
	p := NewPortfolioState(100_000)

	tickers := []string{"AAPL", "MSFT", "NVDA", "AVGO", "ORCL", "CRM", "AMD", "ADBE"}
	var wg sync.WaitGroup
	for _, ticker := range tickers {
		wg.Add(1)
		go func(tk string) {
			defer wg.Done()
			// Each reserve is 10% of starting value against a 30% cap; at
			// most ~3 can win regardless of interleaving.
			_ = p.CheckAndReserve(tk, "technology", 10_000, 0.30)
		}(ticker)
	}
	wg.Wait()

	assert.LessOrEqual(t, p.SectorExposure("technology"), 0.30+1e-9)
}

func TestClosePositionReturnsCash(t *testing.T) {
	p := NewPortfolioState(50_000)
	require.NoError(t, p.CheckAndReserve("XOM", "energy", 20_000, 0.50))
	require.Equal(t, 1, p.SectorPositions("energy"))

	assert.True(t, p.ClosePosition("XOM"))
	assert.Equal(t, 0, p.SectorPositions("energy"))
	assert.InDelta(t, 50_000, p.Snapshot().CashValue, 1e-9)
	assert.False(t, p.ClosePosition("XOM"))
}

func TestSnapshotSectorExposure(t *testing.T) {
	p := NewPortfolioState(100_000)
	require.NoError(t, p.CheckAndReserve("AAPL", "technology", 10_000, 0.30))
	require.NoError(t, p.CheckAndReserve("MSFT", "technology", 10_000, 0.30))
	require.NoError(t, p.CheckAndReserve("XOM", "energy", 5_000, 0.30))

	snap := p.Snapshot()
	assert.InDelta(t, 100_000, snap.TotalValue, 1e-9)
	assert.InDelta(t, 0.20, snap.SectorExposure["technology"], 1e-9)
	assert.InDelta(t, 0.05, snap.SectorExposure["energy"], 1e-9)
	assert.Len(t, snap.Positions, 3)
}
