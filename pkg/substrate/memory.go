package substrate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBroker is the in-process MessageBroker fallback. It preserves the
// networked backend's delivery semantics: per-stream append order, and a
// single shared cursor per consumer group so that each message reaches
// exactly one consumer of that group.
type MemoryBroker struct {
	mu      sync.Mutex
	closed  bool
	streams map[string][]Message
	cursors map[string]int // "stream/group" -> next undelivered index
	lastMs  int64
	lastSeq int64
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		streams: make(map[string][]Message),
		cursors: make(map[string]int),
	}
}

// nextID mirrors the backend's "<unix-milli>-<seq>" entry ID shape.
// Caller holds mu.
func (b *MemoryBroker) nextID(now time.Time) string {
	ms := now.UnixMilli()
	if ms == b.lastMs {
		b.lastSeq++
	} else {
		b.lastMs = ms
		b.lastSeq = 0
	}
	return fmt.Sprintf("%d-%d", ms, b.lastSeq)
}

func (b *MemoryBroker) Publish(_ context.Context, stream string, values map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrUnavailable
	}
	now := time.Now()
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	msg := Message{
		ID:        b.nextID(now),
		Stream:    stream,
		Values:    copied,
		Timestamp: now,
	}
	b.streams[stream] = append(b.streams[stream], msg)
	return msg.ID, nil
}

func (b *MemoryBroker) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	deadline := time.Now().Add(block)
	for {
		if b.isClosed() {
			return nil, ErrUnavailable
		}
		msgs := b.take(stream, group, count)
		if len(msgs) > 0 {
			return msgs, nil
		}
		if block <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// take advances the group cursor and returns up to count messages.
func (b *MemoryBroker) take(stream, group string, count int64) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := stream + "/" + group
	cursor := b.cursors[key]
	entries := b.streams[stream]
	if cursor >= len(entries) {
		return nil
	}

	end := cursor + int(count)
	if end > len(entries) {
		end = len(entries)
	}
	batch := make([]Message, end-cursor)
	copy(batch, entries[cursor:end])
	b.cursors[key] = end
	return batch
}

func (b *MemoryBroker) StreamLength(_ context.Context, stream string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrUnavailable
	}
	return int64(len(b.streams[stream])), nil
}

func (b *MemoryBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// MemoryTimeSeries is the in-process TimeSeriesStore fallback.
type MemoryTimeSeries struct {
	mu     sync.RWMutex
	series map[string][]Point
}

// NewMemoryTimeSeries creates an empty in-process point store.
func NewMemoryTimeSeries() *MemoryTimeSeries {
	return &MemoryTimeSeries{series: make(map[string][]Point)}
}

func (s *MemoryTimeSeries) AddPoint(_ context.Context, key string, ts time.Time, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := s.series[key]
	points = append(points, Point{Timestamp: ts, Value: value})
	// Keep the series ordered; out-of-order appends are rare but allowed.
	if n := len(points); n > 1 && points[n-2].Timestamp.After(ts) {
		sort.Slice(points, func(i, j int) bool {
			return points[i].Timestamp.Before(points[j].Timestamp)
		})
	}
	s.series[key] = points
	return nil
}

func (s *MemoryTimeSeries) QueryRange(_ context.Context, key string, from, to time.Time) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Point
	for _, p := range s.series[key] {
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryTimeSeries) Close() error {
	return nil
}
