package market

import (
	"context"
	"errors"
)

// ErrDataFetch marks a per-ticker fetch failure. Scan cycles skip the
// ticker and continue; the error never aborts the cycle.
var ErrDataFetch = errors.New("market: data fetch failed")

// Market regimes as classified by Regime.
const (
	RegimeBull     = "bull"
	RegimeBear     = "bear"
	RegimeVolatile = "volatile"
	RegimeNeutral  = "neutral"
)

// Snapshot is one ticker's current observation set: quote, intraday move,
// and the derived inputs the scan pipeline consumes.
type Snapshot struct {
	Ticker    string
	Price     float64
	ChangePct float64 // intraday move, percent
	Volume    float64

	// Deep-scan inputs.
	RSI              float64 // 0-100
	MACDHistogram    float64
	TrendDirection   int     // +1 up, -1 down, 0 flat
	Sentiment        float64 // -1..+1
	CallPutRatio     float64 // >1 means call-heavy
	DarkPoolActivity float64 // 0..1
}

// Provider supplies per-ticker observations and a market-regime read.
type Provider interface {
	Quote(ctx context.Context, ticker string) (*Snapshot, error)
	Regime(ctx context.Context) (string, error)
}
