package substrate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TradeFloor/pkg/logger"
)

// Connect probes the networked backend once and returns either the Redis
// pair or the in-process fallback pair. Callers only ever see the
// interfaces; nothing downstream branches on which backing is active.
func Connect(ctx context.Context, cfg RedisConfig, lgr *logger.Logger) (MessageBroker, TimeSeriesStore) {
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}

	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := cli.Ping(probeCtx).Err(); err != nil {
		_ = cli.Close()
		lgr.Warn("redis unreachable, using in-process substrate",
			logger.String("addr", cfg.Addr),
			logger.Error(fmt.Errorf("%w: %v", ErrUnavailable, err)))
		return NewMemoryBroker(), NewMemoryTimeSeries()
	}

	lgr.Info("substrate connected", logger.String("addr", cfg.Addr))
	return NewRedisBroker(cli), NewRedisTimeSeries(cli)
}
