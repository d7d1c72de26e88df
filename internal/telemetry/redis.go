package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

const slowCommandThreshold = 100 * time.Millisecond

// MonitorRedis wires OpenTelemetry tracing and metrics into the client and
// logs dial failures and slow commands.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{threshold: slowCommandThreshold})
	return nil
}

type redisLog struct {
	threshold time.Duration
}

func (redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.ErrorContext(ctx, "redis: dial failed", "addr", addr, "error", err)
			return nil, err
		}
		slog.InfoContext(ctx, "redis: connected", "addr", addr)
		return conn, nil
	}
}

func (l redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		if d := time.Since(start); d > l.threshold {
			slog.WarnContext(ctx, "redis: slow command",
				"cmd", cmd.Name(),
				"duration", d,
			)
		}
		return err
	}
}

func (l redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		if d := time.Since(start); d > l.threshold {
			slog.WarnContext(ctx, "redis: slow pipeline",
				"len", len(cmds),
				"duration", d,
			)
		}
		return err
	}
}
