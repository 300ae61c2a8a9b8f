package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TradeFloor/pkg/logger"
)

// StreamProvider serves quotes out of a cache fed by a WebSocket tick feed.
// Deep-scan fields that the feed does not carry are derived from the rolling
// tick history per ticker.
type StreamProvider struct {
	apiKey         string
	websocketURL   string
	tickers        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	lgr            *logger.Logger

	conn *websocket.Conn

	mu    sync.RWMutex
	cache map[string]*tickerState
}

type tickerState struct {
	snapshot  Snapshot
	openPrice float64
	lastTick  time.Time
	recent    []float64 // rolling window of recent prices
}

// NewStreamProvider creates a WebSocket-backed Provider.
func NewStreamProvider(apiKey, websocketURL string, tickers []string, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) *StreamProvider {
	return &StreamProvider{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		tickers:        tickers,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		lgr:            lgr,
		cache:          make(map[string]*tickerState),
	}
}

// Start connects, subscribes, and runs the read loop until ctx is done.
// Reconnects with a fixed delay on read failure.
func (p *StreamProvider) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.connect(ctx); err != nil {
			p.lgr.Warn("market feed connect failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.reconnectDelay):
				continue
			}
		}
		p.readLoop(ctx)
	}
}

func (p *StreamProvider) connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", p.websocketURL, p.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("market feed connect: %w", err)
	}
	p.conn = conn

	for _, t := range p.tickers {
		msg := map[string]string{"type": "subscribe", "symbol": t}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	p.lgr.Info("market feed connected", logger.Int("tickers", len(p.tickers)))
	return nil
}

type feedTick struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type feedMessage struct {
	Type string     `json:"type"`
	Data []feedTick `json:"data"`
}

func (p *StreamProvider) readLoop(ctx context.Context) {
	pingTicker := time.NewTicker(p.pingInterval)
	defer pingTicker.Stop()

	readErr := make(chan error, 1)
	go func() {
		for {
			_, b, err := p.conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var m feedMessage
			if err := json.Unmarshal(b, &m); err != nil {
				continue // ignore non-trade frames
			}
			if m.Type != "trade" {
				continue
			}
			for _, tick := range m.Data {
				p.apply(tick)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = p.conn.Close()
			return
		case <-pingTicker.C:
			_ = p.conn.WriteMessage(websocket.PingMessage, nil)
		case err := <-readErr:
			p.lgr.Warn("market feed read failed, reconnecting", logger.Error(err))
			_ = p.conn.Close()
			return
		}
	}
}

const recentWindow = 30

func (p *StreamProvider) apply(tick feedTick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.cache[tick.S]
	if !ok {
		st = &tickerState{openPrice: tick.P}
		p.cache[tick.S] = st
	}

	st.recent = append(st.recent, tick.P)
	if len(st.recent) > recentWindow {
		st.recent = st.recent[1:]
	}
	st.lastTick = time.UnixMilli(tick.T)

	changePct := 0.0
	if st.openPrice > 0 {
		changePct = (tick.P - st.openPrice) / st.openPrice * 100
	}
	trend := trendOf(st.recent)

	st.snapshot = Snapshot{
		Ticker:           tick.S,
		Price:            tick.P,
		ChangePct:        changePct,
		Volume:           st.snapshot.Volume + tick.V,
		RSI:              rsiOf(st.recent),
		MACDHistogram:    macdHistOf(st.recent),
		TrendDirection:   trend,
		Sentiment:        st.snapshot.Sentiment, // filled by news pipeline, not ticks
		CallPutRatio:     st.snapshot.CallPutRatio,
		DarkPoolActivity: st.snapshot.DarkPoolActivity,
	}
}

func (p *StreamProvider) Quote(_ context.Context, ticker string) (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.cache[ticker]
	if !ok || st.lastTick.IsZero() {
		return nil, fmt.Errorf("%w: no quote for %s", ErrDataFetch, ticker)
	}
	copied := st.snapshot
	return &copied, nil
}

func (p *StreamProvider) Regime(_ context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var sum, absSum float64
	var n int
	for _, st := range p.cache {
		sum += st.snapshot.ChangePct
		absSum += math.Abs(st.snapshot.ChangePct)
		n++
	}
	if n == 0 {
		return RegimeNeutral, nil
	}
	avg := sum / float64(n)
	switch {
	case absSum/float64(n) > 2.5:
		return RegimeVolatile, nil
	case avg > 0.5:
		return RegimeBull, nil
	case avg < -0.5:
		return RegimeBear, nil
	default:
		return RegimeNeutral, nil
	}
}

func trendOf(prices []float64) int {
	if len(prices) < 2 {
		return 0
	}
	first, last := prices[0], prices[len(prices)-1]
	switch {
	case last > first*1.001:
		return 1
	case last < first*0.999:
		return -1
	default:
		return 0
	}
}

// rsiOf computes a Wilder-style RSI over the rolling window.
func rsiOf(prices []float64) float64 {
	if len(prices) < 2 {
		return 50
	}
	var gains, losses float64
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if gains+losses == 0 {
		return 50
	}
	return 100 * gains / (gains + losses)
}

func macdHistOf(prices []float64) float64 {
	if len(prices) < 4 {
		return 0
	}
	short := ema(prices, 4)
	long := ema(prices, 12)
	return short - long
}

func ema(prices []float64, span int) float64 {
	alpha := 2.0 / float64(span+1)
	v := prices[0]
	for _, p := range prices[1:] {
		v = alpha*p + (1-alpha)*v
	}
	return v
}
