package substrate

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable signals that the backend cannot serve: the networked
	// backend is unreachable, or the broker has been closed.
	ErrUnavailable = errors.New("substrate: backend unavailable")
)

// Message is one entry of an append-only stream.
type Message struct {
	ID        string
	Stream    string
	Values    map[string]string
	Timestamp time.Time
}

// Point is one sample of a time series.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// MessageBroker is the append-only log contract shared by all pipeline tiers.
// Within one consumer group each published message is delivered to exactly
// one consumer, in publish order, never twice. Distinct groups each see the
// full stream. Publish never blocks on downstream readers.
type MessageBroker interface {
	Publish(ctx context.Context, stream string, values map[string]string) (string, error)
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error)
	StreamLength(ctx context.Context, stream string) (int64, error)
	Close() error
}

// TimeSeriesStore is a time-indexed point store, append-only and queried by
// inclusive range.
type TimeSeriesStore interface {
	AddPoint(ctx context.Context, key string, ts time.Time, value float64) error
	QueryRange(ctx context.Context, key string, from, to time.Time) ([]Point, error)
	Close() error
}
