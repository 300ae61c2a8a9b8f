package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// SimProvider is a deterministic offline Provider. Observations are derived
// from a hash of (ticker, time bucket) so repeated calls within one bucket
// agree, and values drift between buckets. Used when no feed is configured
// and throughout the tests.
type SimProvider struct {
	bucket time.Duration

	mu      sync.RWMutex
	failing map[string]bool
	frozen  map[string]*Snapshot
}

// NewSimProvider creates a simulated market data provider.
func NewSimProvider() *SimProvider {
	return &SimProvider{
		bucket:  time.Minute,
		failing: make(map[string]bool),
		frozen:  make(map[string]*Snapshot),
	}
}

// SetSnapshot pins a fixed observation for a ticker. Test hook.
func (p *SimProvider) SetSnapshot(s *Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen[s.Ticker] = s
}

// FailTicker makes Quote return ErrDataFetch for a ticker. Test hook.
func (p *SimProvider) FailTicker(ticker string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[ticker] = fail
}

func (p *SimProvider) Quote(_ context.Context, ticker string) (*Snapshot, error) {
	p.mu.RLock()
	if p.failing[ticker] {
		p.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrDataFetch, ticker)
	}
	if s, ok := p.frozen[ticker]; ok {
		p.mu.RUnlock()
		copied := *s
		return &copied, nil
	}
	p.mu.RUnlock()

	h := p.seed(ticker, time.Now())
	price := 8 + float64(h%9200)/20 // 8 .. ~468
	change := float64(int64(h>>8)%700-350) / 100.0
	trend := 0
	if change > 0.5 {
		trend = 1
	} else if change < -0.5 {
		trend = -1
	}

	return &Snapshot{
		Ticker:           ticker,
		Price:            price,
		ChangePct:        change,
		Volume:           float64(1_000_000 + h%9_000_000),
		RSI:              20 + float64((h>>16)%60),
		MACDHistogram:    change / 4,
		TrendDirection:   trend,
		Sentiment:        float64(int64(h>>24)%200-100) / 100.0,
		CallPutRatio:     0.5 + float64((h>>32)%150)/100.0,
		DarkPoolActivity: float64((h>>40)%100) / 100.0,
	}, nil
}

func (p *SimProvider) Regime(ctx context.Context) (string, error) {
	// Classify from a small fixed basket so the answer is stable per bucket.
	basket := []string{"SPY", "QQQ", "IWM", "DIA"}
	var sum, absSum float64
	for _, t := range basket {
		s, err := p.Quote(ctx, t)
		if err != nil {
			continue
		}
		sum += s.ChangePct
		absSum += math.Abs(s.ChangePct)
	}
	avg := sum / float64(len(basket))
	switch {
	case absSum/float64(len(basket)) > 2.5:
		return RegimeVolatile, nil
	case avg > 0.5:
		return RegimeBull, nil
	case avg < -0.5:
		return RegimeBear, nil
	default:
		return RegimeNeutral, nil
	}
}

func (p *SimProvider) seed(ticker string, now time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	_, _ = fmt.Fprintf(h, "%d", now.UnixNano()/int64(p.bucket))
	return h.Sum64()
}
