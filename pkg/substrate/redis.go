package substrate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the networked backend.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	ProbeTimeout time.Duration
}

// RedisBroker implements MessageBroker on Redis Streams.
type RedisBroker struct {
	cli *redis.Client

	mu     sync.Mutex
	groups map[string]struct{} // "stream/group" pairs already created
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(cli *redis.Client) *RedisBroker {
	return &RedisBroker{cli: cli, groups: make(map[string]struct{})}
}

func (b *RedisBroker) Publish(ctx context.Context, stream string, values map[string]string) (string, error) {
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	id, err := b.cli.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: args}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// ensureGroup creates the consumer group once per (stream, group).
// An already-existing group is not an error.
func (b *RedisBroker) ensureGroup(ctx context.Context, stream, group string) error {
	key := stream + "/" + group
	b.mu.Lock()
	_, done := b.groups[key]
	b.mu.Unlock()
	if done {
		return nil
	}

	err := b.cli.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", stream, group, err)
	}

	b.mu.Lock()
	b.groups[key] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return nil, err
	}

	res, err := b.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // block timed out with nothing new
		}
		return nil, fmt.Errorf("xreadgroup %s/%s: %w", stream, group, err)
	}

	var msgs []Message
	for _, s := range res {
		for _, m := range s.Messages {
			values := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if sv, ok := v.(string); ok {
					values[k] = sv
				} else {
					values[k] = fmt.Sprintf("%v", v)
				}
			}
			msgs = append(msgs, Message{
				ID:        m.ID,
				Stream:    s.Stream,
				Values:    values,
				Timestamp: timeFromStreamID(m.ID),
			})
			// Processing is at-most-once per group member; ack on delivery.
			_ = b.cli.XAck(ctx, stream, group, m.ID).Err()
		}
	}
	return msgs, nil
}

func (b *RedisBroker) StreamLength(ctx context.Context, stream string) (int64, error) {
	n, err := b.cli.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", stream, err)
	}
	return n, nil
}

func (b *RedisBroker) Close() error {
	return b.cli.Close()
}

// timeFromStreamID parses the millisecond prefix of a stream entry ID.
func timeFromStreamID(id string) time.Time {
	idx := strings.IndexByte(id, '-')
	if idx <= 0 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(id[:idx], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// RedisTimeSeries implements TimeSeriesStore on sorted sets scored by
// unix-milli timestamps.
type RedisTimeSeries struct {
	cli *redis.Client
}

// NewRedisTimeSeries wraps an existing client.
func NewRedisTimeSeries(cli *redis.Client) *RedisTimeSeries {
	return &RedisTimeSeries{cli: cli}
}

func tsKey(key string) string { return "ts:" + key }

func (s *RedisTimeSeries) AddPoint(ctx context.Context, key string, ts time.Time, value float64) error {
	ms := ts.UnixMilli()
	member := fmt.Sprintf("%d:%s", ms, strconv.FormatFloat(value, 'f', -1, 64))
	if err := s.cli.ZAdd(ctx, tsKey(key), redis.Z{Score: float64(ms), Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisTimeSeries) QueryRange(ctx context.Context, key string, from, to time.Time) ([]Point, error) {
	members, err := s.cli.ZRangeByScore(ctx, tsKey(key), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}

	points := make([]Point, 0, len(members))
	for _, m := range members {
		idx := strings.IndexByte(m, ':')
		if idx <= 0 {
			continue
		}
		ms, err := strconv.ParseInt(m[:idx], 10, 64)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(m[idx+1:], 64)
		if err != nil {
			continue
		}
		points = append(points, Point{Timestamp: time.UnixMilli(ms), Value: v})
	}
	return points, nil
}

func (s *RedisTimeSeries) Close() error {
	// Shares the broker's client; connection lifetime is owned there.
	return nil
}
