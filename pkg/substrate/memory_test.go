package substrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerPublishConsumeOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	published := []map[string]string{
		{"ticker": "TSLA", "action": "BUY", "score": "85"},
		{"ticker": "AAPL", "action": "SELL", "score": "78"},
		{"ticker": "NVDA", "action": "BUY", "score": "92"},
	}
	for _, v := range published {
		id, err := b.Publish(ctx, "signals:universe", v)
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	msgs, err := b.Consume(ctx, "signals:universe", "team_leads", "team_lead_1", 3, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	for i, m := range msgs {
		assert.Equal(t, published[i]["ticker"], m.Values["ticker"])
		assert.Equal(t, published[i]["action"], m.Values["action"])
		assert.NotEmpty(t, m.ID)
	}
}

func TestMemoryBrokerGroupFanOutDisjoint(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	for i := 0; i < 10; i++ {
		_, err := b.Publish(ctx, "signals:universe", map[string]string{
			"ticker": fmt.Sprintf("SYM%d", i),
		})
		require.NoError(t, err)
	}

	b1, err := b.Consume(ctx, "signals:universe", "team_leads", "c1", 5, 0)
	require.NoError(t, err)
	b2, err := b.Consume(ctx, "signals:universe", "team_leads", "c2", 5, 0)
	require.NoError(t, err)

	require.Len(t, b1, 5)
	require.Len(t, b2, 5)

	seen := make(map[string]bool)
	for _, m := range append(b1, b2...) {
		sym := m.Values["ticker"]
		assert.False(t, seen[sym], "message %s delivered twice within one group", sym)
		seen[sym] = true
	}
	assert.Len(t, seen, 10)
}

func TestMemoryBrokerDistinctGroupsSeeFullStream(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	for i := 0; i < 4; i++ {
		_, err := b.Publish(ctx, "signals:validated", map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	g1, err := b.Consume(ctx, "signals:validated", "sector_heads", "sh1", 10, 0)
	require.NoError(t, err)
	g2, err := b.Consume(ctx, "signals:validated", "auditors", "a1", 10, 0)
	require.NoError(t, err)

	assert.Len(t, g1, 4)
	assert.Len(t, g2, 4)
}

func TestMemoryBrokerStreamLength(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	n, err := b.StreamLength(ctx, "signals:approved")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := 0; i < 3; i++ {
		_, err := b.Publish(ctx, "signals:approved", map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	n, err = b.StreamLength(ctx, "signals:approved")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Consuming does not shrink the log.
	_, err = b.Consume(ctx, "signals:approved", "g", "c", 10, 0)
	require.NoError(t, err)
	n, err = b.StreamLength(ctx, "signals:approved")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryBrokerBlockTimeout(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	start := time.Now()
	msgs, err := b.Consume(ctx, "signals:universe", "g", "c", 5, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryBrokerUnblocksOnPublish(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	done := make(chan []Message, 1)
	go func() {
		msgs, _ := b.Consume(ctx, "signals:universe", "g", "c", 5, 2*time.Second)
		done <- msgs
	}()

	time.Sleep(30 * time.Millisecond)
	_, err := b.Publish(ctx, "signals:universe", map[string]string{"ticker": "TSLA"})
	require.NoError(t, err)

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
		assert.Equal(t, "TSLA", msgs[0].Values["ticker"])
	case <-time.After(time.Second):
		t.Fatal("consumer did not unblock after publish")
	}
}

func TestMemoryBrokerConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	const n = 50
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := b.Publish(ctx, "signals:universe", map[string]string{"n": fmt.Sprint(i)})
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	length, err := b.StreamLength(ctx, "signals:universe")
	require.NoError(t, err)
	assert.Equal(t, int64(n), length)
}

func TestMemoryTimeSeriesRangeQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTimeSeries()

	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := s.AddPoint(ctx, "sentiment:TSLA", base.Add(time.Duration(i)*time.Minute), float64(i)*0.1)
		require.NoError(t, err)
	}

	// Inclusive range covering the middle three points.
	points, err := s.QueryRange(ctx, "sentiment:TSLA", base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 0.1, points[0].Value, 1e-9)
	assert.InDelta(t, 0.3, points[2].Value, 1e-9)

	// Unknown series is empty, not an error.
	points, err = s.QueryRange(ctx, "sentiment:ZZZ", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestMemoryTimeSeriesOutOfOrderAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTimeSeries()

	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddPoint(ctx, "winrate:scanner_1", base.Add(2*time.Minute), 0.6))
	require.NoError(t, s.AddPoint(ctx, "winrate:scanner_1", base, 0.4))

	points, err := s.QueryRange(ctx, "winrate:scanner_1", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp))
}

func TestMemoryBrokerClosedReturnsUnavailable(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	_, err := b.Publish(ctx, "signals:universe", map[string]string{"ticker": "AAPL"})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.Publish(ctx, "signals:universe", map[string]string{"ticker": "MSFT"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = b.Consume(ctx, "signals:universe", "team_leads", "team_lead_1", 10, 0)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = b.StreamLength(ctx, "signals:universe")
	assert.ErrorIs(t, err, ErrUnavailable)
}
